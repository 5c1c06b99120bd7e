// Package router is the single entry point for inbound interception
// events. Each event is dispatched to the matching parser and merge-store
// update; malformed events are swallowed per branch so one bad payload can
// never abort processing of the rest, while durable-storage failures are
// surfaced to the sender.
package router

import (
	"context"
	"encoding/json"
	"regexp"

	"igvault/pkg/archive"
	"igvault/pkg/logger"
	"igvault/pkg/merge"
	"igvault/pkg/models"
	"igvault/pkg/parse"
	"igvault/pkg/settings"
	"igvault/pkg/sink"
	"igvault/pkg/telemetry"
)

// antiHijackSplit matches the anti-JSON-hijacking prefix the site prepends
// to concatenated response documents.
var antiHijackSplit = regexp.MustCompile(`\s*for\s+\(;;\);\s*`)

// Outcome describes how an event was routed. Ack reports whether the sender
// expects an acknowledgment; when it is true the acknowledgment implies the
// merge was durably applied.
type Outcome struct {
	Branch  string
	Mutated bool
	Ack     bool
}

// Config wires the router's collaborators.
type Config struct {
	Store    *merge.Store
	Settings settings.Provider
	Sink     sink.Sink
	Nav      sink.Navigator
	// TmpDir receives in-flight archive files before sink delivery.
	TmpDir string
	// Savers maps an API endpoint identifier to the parser set dispatched
	// for captures tagged with it. Nil gets the default registry.
	Savers map[string][]parse.Saver
}

// DefaultSavers is the endpoint routing table observed on the wire.
func DefaultSavers() map[string][]parse.Saver {
	return map[string][]parse.Saver{
		models.APIGraphQL: {parse.Stories()},
		models.APIGraphQLQuery: {
			parse.Highlights(),
			parse.Reels(),
			parse.Stories(),
			parse.ProfileReel(),
		},
		models.APIReelsMedia: {},
	}
}

type Router struct {
	store    *merge.Store
	settings settings.Provider
	sink     sink.Sink
	nav      sink.Navigator
	tmpDir   string
	savers   map[string][]parse.Saver
}

func New(cfg Config) *Router {
	savers := cfg.Savers
	if savers == nil {
		savers = DefaultSavers()
	}
	nav := cfg.Nav
	if nav == nil {
		nav = sink.LogNavigator{}
	}
	return &Router{
		store:    cfg.Store,
		settings: cfg.Settings,
		sink:     cfg.Sink,
		nav:      nav,
		tmpDir:   cfg.TmpDir,
		savers:   savers,
	}
}

// Route dispatches one event. The returned error is reserved for failures
// the sender must see (durable-storage failures, aborted archive
// assemblies); parser and decoder failures are logged and swallowed.
func (r *Router) Route(ctx context.Context, ev models.Event) (Outcome, error) {
	switch ev.Type {
	case models.EventOpenURL:
		return r.routeOpenURL(ev)
	case models.EventZipDownload:
		return r.routeZipDownload(ev)
	case models.EventThreadsSearch:
		return r.routeThreadsSearch(ev)
	case models.EventThreads:
		return r.routeThreads(ev)
	case models.EventStories:
		return r.routeStories(ev)
	}
	return r.routeAPI(ctx, ev)
}

func (r *Router) routeOpenURL(ev models.Event) (Outcome, error) {
	out := Outcome{Branch: "open_url"}
	var url string
	index := 0
	if err := json.Unmarshal(ev.Data, &url); err != nil {
		var req struct {
			URL   string `json:"url"`
			Index int    `json:"index"`
		}
		if err := json.Unmarshal(ev.Data, &req); err != nil || req.URL == "" {
			logger.Debug("open_url_unparseable")
			return out, nil
		}
		url, index = req.URL, req.Index
	}
	if err := r.nav.OpenURL(url, index+1); err != nil {
		logger.Warn("open_url_failed", "error", err)
	}
	return out, nil
}

func (r *Router) routeZipDownload(ev models.Event) (Outcome, error) {
	out := Outcome{Branch: "zip_download"}
	var req models.ZipDownloadRequest
	if err := json.Unmarshal(ev.Data, &req); err != nil {
		logger.Debug("zip_download_unparseable", "error", err)
		return out, nil
	}
	replaceJpeg, _, err := r.settings.Get(models.SettingReplaceJpegWithJpg)
	if err != nil {
		return out, err
	}
	asm := archive.New(archive.Options{ReplaceJpegWithJpg: replaceJpeg})
	path, err := asm.AssembleToFile(req.BlobList, r.tmpDir, req.ZipFileName)
	if err != nil {
		telemetry.ArchiveFailures.Inc()
		return out, err
	}
	telemetry.ArchivesAssembled.Inc()
	telemetry.ArchiveEntries.Add(float64(len(req.BlobList)))
	if err := r.sink.Deliver(path, req.ZipFileName+".zip"); err != nil {
		return out, err
	}
	return out, nil
}

func (r *Router) routeThreadsSearch(ev models.Event) (Outcome, error) {
	out := Outcome{Branch: "threads_search"}
	raw, ok := rawString(ev.Data)
	if !ok {
		return out, nil
	}
	for _, fragment := range antiHijackSplit.Split(raw, -1) {
		if fragment == "" {
			continue
		}
		var doc interface{}
		if err := json.Unmarshal([]byte(fragment), &doc); err != nil {
			// best-effort: fragments that fail to parse are skipped
			continue
		}
		result, found := parse.FindValueByKey(doc, "searchResults")
		if !found {
			continue
		}
		items := flattenSearchEdges(result)
		if len(items) == 0 {
			continue
		}
		n, err := r.store.UpsertThreads(items)
		if err != nil {
			return out, err
		}
		if n > 0 {
			out.Mutated = true
			telemetry.RecordsMerged.WithLabelValues(merge.ContainerThreads).Add(float64(n))
		}
	}
	return out, nil
}

// flattenSearchEdges pulls every edge's nested thread-items list out of a
// searchResults value and flattens them into one batch.
func flattenSearchEdges(result interface{}) []json.RawMessage {
	m, ok := result.(map[string]interface{})
	if !ok {
		return nil
	}
	edges, ok := m["edges"].([]interface{})
	if !ok {
		return nil
	}
	var items []json.RawMessage
	for _, edge := range edges {
		threadItems, ok := parse.FindValueByKey(edge, "thread_items")
		if !ok {
			continue
		}
		list, ok := threadItems.([]interface{})
		if !ok {
			continue
		}
		for _, item := range list {
			b, err := json.Marshal(item)
			if err != nil {
				continue
			}
			items = append(items, b)
		}
	}
	return items
}

func (r *Router) routeThreads(ev models.Event) (Outcome, error) {
	out := Outcome{Branch: "threads"}
	var items []json.RawMessage
	if err := json.Unmarshal(ev.Data, &items); err != nil {
		logger.Debug("threads_unparseable", "error", err)
		return out, nil
	}
	n, err := r.store.UpsertThreads(items)
	if err != nil {
		return out, err
	}
	if n > 0 {
		out.Mutated = true
		telemetry.RecordsMerged.WithLabelValues(merge.ContainerThreads).Add(float64(n))
	}
	return out, nil
}

func (r *Router) routeStories(ev models.Event) (Outcome, error) {
	out := Outcome{Branch: "stories", Ack: true}
	var owner models.StoryOwner
	if err := json.Unmarshal(ev.Data, &owner); err != nil || owner.Username == "" || owner.UserID == "" {
		logger.Debug("stories_unparseable")
		return out, nil
	}
	// ack only after the durable write below has completed
	if err := r.store.UpsertUserIdentity(owner.Username, owner.UserID); err != nil {
		return out, err
	}
	out.Mutated = true
	telemetry.RecordsMerged.WithLabelValues("user_identity").Inc()
	return out, nil
}

func (r *Router) routeAPI(ctx context.Context, ev models.Event) (Outcome, error) {
	out := Outcome{Branch: "api", Ack: true}
	raw, ok := rawString(ev.Data)
	if !ok {
		return out, nil
	}
	data := []byte(raw)
	if !json.Valid(data) {
		// malformed captures are swallowed; the sender is still acked
		logger.Debug("api_capture_invalid_json", "api", ev.API)
		return out, nil
	}
	savers, known := r.savers[ev.API]
	if !known {
		return out, nil
	}
	for _, sv := range savers {
		recs := sv.Extract(data)
		if len(recs) == 0 {
			continue
		}
		n, err := r.store.UpsertRecords(sv.Container, recs)
		if err != nil {
			return out, err
		}
		if n > 0 {
			out.Mutated = true
			telemetry.RecordsMerged.WithLabelValues(sv.Container).Add(float64(n))
		}
	}
	if ev.API == models.APIReelsMedia {
		var tray models.ReelsMediaTray
		if err := json.Unmarshal(data, &tray); err == nil && len(tray.ReelsMedia) > 0 {
			if err := r.store.UpsertReelsMedia(tray); err != nil {
				return out, err
			}
			out.Mutated = true
			telemetry.RecordsMerged.WithLabelValues("reels_media").Add(float64(len(tray.ReelsMedia)))
		}
	}
	return out, nil
}

// rawString unwraps an event data field that carries a raw string payload.
// The relay may deliver it JSON-quoted or as the bare bytes.
func rawString(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, true
	}
	return string(data), true
}
