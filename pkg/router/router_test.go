package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"igvault/pkg/merge"
	"igvault/pkg/models"
	"igvault/pkg/settings"
)

type captureSink struct {
	delivered []string
}

func (s *captureSink) Deliver(srcPath, filename string) error {
	s.delivered = append(s.delivered, filename)
	return os.Remove(srcPath)
}

type captureNav struct {
	url   string
	index int
}

func (n *captureNav) OpenURL(url string, insertAtIndex int) error {
	n.url = url
	n.index = insertAtIndex
	return nil
}

type failingBackend struct{}

func (failingBackend) Get(string) ([]byte, bool, error) { return nil, false, errors.New("disk gone") }
func (failingBackend) SetAll(map[string][]byte) error   { return errors.New("disk gone") }

func newTestRouter(t *testing.T) (*Router, *merge.Store, *captureSink, *captureNav) {
	t.Helper()
	store := merge.New(merge.NewMemoryBackend())
	snk := &captureSink{}
	nav := &captureNav{}
	r := New(Config{
		Store:    store,
		Settings: settings.MapProvider{models.SettingReplaceJpegWithJpg: true},
		Sink:     snk,
		Nav:      nav,
		TmpDir:   t.TempDir(),
	})
	return r, store, snk, nav
}

func route(t *testing.T, r *Router, ev models.Event) Outcome {
	t.Helper()
	out, err := r.Route(context.Background(), ev)
	if err != nil {
		t.Fatalf("route %q/%q: %v", ev.Type, ev.API, err)
	}
	return out
}

func TestRouteThreads(t *testing.T) {
	r, store, _, _ := newTestRouter(t)
	out := route(t, r, models.Event{
		Type: models.EventThreads,
		Data: json.RawMessage(`[{"code":"c1"},{"code":"c2"},{"nope":true}]`),
	})
	if !out.Mutated || out.Ack {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	threads, err := store.Threads()
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 thread items, got %d", len(threads))
	}
}

func TestRouteStoriesAcksAfterWrite(t *testing.T) {
	r, store, _, _ := newTestRouter(t)
	out := route(t, r, models.Event{
		Type: models.EventStories,
		Data: json.RawMessage(`{"username":"alice","user_id":"101"}`),
	})
	if !out.Ack || !out.Mutated {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	id, ok, err := store.LookupUserID("alice")
	if err != nil || !ok || id != "101" {
		t.Fatalf("identity not stored: %q %v %v", id, ok, err)
	}
}

func TestRouteStoriesMalformedSwallowed(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	out := route(t, r, models.Event{
		Type: models.EventStories,
		Data: json.RawMessage(`{"username":"alice"}`),
	})
	if out.Mutated {
		t.Fatalf("partial owner must not mutate: %+v", out)
	}
}

func TestRouteThreadsSearch(t *testing.T) {
	r, store, _, _ := newTestRouter(t)
	doc := `{"data":{"searchResults":{"edges":[
		{"node":{"thread":{"thread_items":[{"post":{"code":"p1"}},{"post":{"code":"p2"}}]}}}
	]}}}`
	raw := "for (;;);" + `garbage fragment` + "\nfor (;;);" + doc
	data, _ := json.Marshal(raw)
	out := route(t, r, models.Event{Type: models.EventThreadsSearch, Data: data})
	if !out.Mutated {
		t.Fatalf("expected mutation: %+v", out)
	}
	threads, err := store.Threads()
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 items from search results, got %d", len(threads))
	}
	if threads[0].Key != "p1" || threads[1].Key != "p2" {
		t.Fatalf("unexpected keys: %q %q", threads[0].Key, threads[1].Key)
	}
}

func TestRouteThreadsSearchAllGarbage(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	data, _ := json.Marshal("for (;;);totally broken")
	out := route(t, r, models.Event{Type: models.EventThreadsSearch, Data: data})
	if out.Mutated {
		t.Fatalf("garbage must not mutate: %+v", out)
	}
}

func TestRouteAPIGraphQLQuery(t *testing.T) {
	r, store, _, _ := newTestRouter(t)
	payload := `{"data":{
		"highlights":{"edges":[{"node":{"id":"h1"}}]},
		"xdt_api__v1__clips_user":{"edges":[{"media":{"pk":"m1"}}]},
		"reel":{"id":"u9"}
	}}`
	data, _ := json.Marshal(payload)
	out := route(t, r, models.Event{API: models.APIGraphQLQuery, Data: data})
	if !out.Ack || !out.Mutated {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	for container, want := range map[string]int{
		merge.ContainerHighlights:   1,
		merge.ContainerStories:      1,
		merge.ContainerReelsProfile: 1,
	} {
		recs, err := store.Records(container)
		if err != nil {
			t.Fatalf("records %s: %v", container, err)
		}
		if len(recs) != want {
			t.Fatalf("%s: expected %d records, got %d", container, want, len(recs))
		}
	}
}

func TestRouteAPIUnknownEndpointAcked(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	data, _ := json.Marshal(`{"anything":true}`)
	out := route(t, r, models.Event{API: "https://example.com/other", Data: data})
	if !out.Ack || out.Mutated {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestRouteAPIInvalidCaptureAcked(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	data, _ := json.Marshal(`{{definitely not json`)
	out := route(t, r, models.Event{API: models.APIGraphQLQuery, Data: data})
	if !out.Ack || out.Mutated {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestRouteReelsMediaTray(t *testing.T) {
	r, store, _, _ := newTestRouter(t)
	payload := `{"reels":{"101":{"seen":true}},"reels_media":[{"id":"A"},{"id":"B"}]}`
	data, _ := json.Marshal(payload)
	out := route(t, r, models.Event{API: models.APIReelsMedia, Data: data})
	if !out.Ack || !out.Mutated {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	media, err := store.ReelsMedia()
	if err != nil {
		t.Fatalf("reels media: %v", err)
	}
	if len(media) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(media))
	}
}

func TestRouteZipDownload(t *testing.T) {
	r, _, snk, _ := newTestRouter(t)
	req := models.ZipDownloadRequest{
		ZipFileName: "bundle",
		BlobList: []models.ArchiveEntry{
			{Filename: models.CaptionFilename, Text: "hi"},
			{Filename: "one", MimeType: "image/jpeg", Content: []byte{1}},
		},
	}
	data, _ := json.Marshal(req)
	out := route(t, r, models.Event{Type: models.EventZipDownload, Data: data})
	if out.Ack {
		t.Fatalf("zip download must not ack: %+v", out)
	}
	if len(snk.delivered) != 1 || snk.delivered[0] != "bundle.zip" {
		t.Fatalf("unexpected deliveries: %v", snk.delivered)
	}
}

func TestRouteZipDownloadEntryFailureSurfaced(t *testing.T) {
	r, _, snk, _ := newTestRouter(t)
	req := models.ZipDownloadRequest{
		ZipFileName: "bundle",
		BlobList:    []models.ArchiveEntry{{Filename: ""}},
	}
	data, _ := json.Marshal(req)
	if _, err := r.Route(context.Background(), models.Event{Type: models.EventZipDownload, Data: data}); err == nil {
		t.Fatal("expected entry failure to surface")
	}
	if len(snk.delivered) != 0 {
		t.Fatalf("partial archive delivered: %v", snk.delivered)
	}
}

func TestRouteOpenURL(t *testing.T) {
	r, _, _, nav := newTestRouter(t)
	data, _ := json.Marshal(map[string]interface{}{"url": "https://example.com/p/c1", "index": 3})
	out := route(t, r, models.Event{Type: models.EventOpenURL, Data: data})
	if out.Ack || out.Mutated {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if nav.url != "https://example.com/p/c1" || nav.index != 4 {
		t.Fatalf("navigator got (%q, %d), want adjacent index", nav.url, nav.index)
	}
}

func TestRouteOpenURLBareString(t *testing.T) {
	r, _, _, nav := newTestRouter(t)
	data, _ := json.Marshal("https://example.com/p/c2")
	route(t, r, models.Event{Type: models.EventOpenURL, Data: data})
	if nav.url != "https://example.com/p/c2" || nav.index != 1 {
		t.Fatalf("navigator got (%q, %d)", nav.url, nav.index)
	}
}

func TestRouteStorageFailureSurfaced(t *testing.T) {
	store := merge.New(failingBackend{})
	r := New(Config{
		Store:    store,
		Settings: settings.MapProvider{},
		Sink:     &captureSink{},
		TmpDir:   t.TempDir(),
	})
	_, err := r.Route(context.Background(), models.Event{
		Type: models.EventThreads,
		Data: json.RawMessage(`[{"code":"c1"}]`),
	})
	if !errors.Is(err, merge.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestRouteManyEventsIndependent(t *testing.T) {
	r, store, _, _ := newTestRouter(t)
	for i := 0; i < 10; i++ {
		route(t, r, models.Event{
			Type: models.EventThreads,
			Data: json.RawMessage(fmt.Sprintf(`[{"code":"c%d"}]`, i)),
		})
	}
	threads, err := store.Threads()
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(threads) != 10 {
		t.Fatalf("expected 10 items, got %d", len(threads))
	}
}
