package models

import "encoding/json"

// Event is the inbound message shape produced by the interception relay.
// Type discriminates page-originated messages; API tags raw endpoint
// captures. Data is either an already-structured JSON value or a raw string
// requiring type-specific decoding.
type Event struct {
	Type string          `json:"type,omitempty"`
	API  string          `json:"api,omitempty"`
	Data json.RawMessage `json:"data"`
}

// Known Event.Type discriminants.
const (
	EventOpenURL       = "open_url"
	EventZipDownload   = "zip_download"
	EventThreads       = "threads"
	EventThreadsSearch = "threads_searchResults"
	EventStories       = "stories"
)

// Known Event.API endpoint identifiers, as observed on the wire.
const (
	APIGraphQL      = "https://www.instagram.com/api/graphql"
	APIGraphQLQuery = "https://www.instagram.com/graphql/query"
	APIReelsMedia   = "/api/v1/feed/reels_media/?reel_ids="
)

// StoryOwner is the payload of a "stories" event: one username/user-id pair
// destined for the user identity index.
type StoryOwner struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
}

// ReelsMediaTray is the parsed body of a reels_media API capture. Reels is a
// summary object shallow-merged into the stored summary; ReelsMedia is the
// batch of tray entries merged by id.
type ReelsMediaTray struct {
	Reels      map[string]json.RawMessage `json:"reels"`
	ReelsMedia []json.RawMessage          `json:"reels_media"`
}

// ZipDownloadRequest is the payload of a "zip_download" event.
type ZipDownloadRequest struct {
	ZipFileName string         `json:"zipFileName"`
	BlobList    []ArchiveEntry `json:"blobList"`
}

// ArchiveEntry is one member of a requested archive. Binary content arrives
// base64-encoded with a MIME type; the caption sentinel carries plain text.
type ArchiveEntry struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type,omitempty"`
	Content  []byte `json:"content,omitempty"`
	Text     string `json:"text,omitempty"`
}

// CaptionFilename is the sentinel name for text entries that bypass
// extension inference and are stored verbatim.
const CaptionFilename = "caption.txt"

// Settings is the fixed list of boolean configuration flags. Each is seeded
// to true on first install when absent from the store.
var Settings = []string{
	SettingReplaceJpegWithJpg,
	"setting_capture_threads",
	"setting_capture_stories",
	"setting_capture_reels",
	"setting_capture_highlights",
}

// SettingReplaceJpegWithJpg controls jpeg->jpg extension normalization
// during archive assembly.
const SettingReplaceJpegWithJpg = "setting_format_replace_jpeg_with_jpg"
