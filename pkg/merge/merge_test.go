package merge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"igvault/pkg/models"
)

// failingBackend fails every operation; used to verify storage failures are
// surfaced as ErrStorage instead of swallowed.
type failingBackend struct{}

func (failingBackend) Get(string) ([]byte, bool, error) {
	return nil, false, errors.New("disk gone")
}
func (failingBackend) SetAll(map[string][]byte) error {
	return errors.New("disk gone")
}

func pair(key, record string) Pair {
	return Pair{Key: key, Record: json.RawMessage(record)}
}

func TestUpsertRecordsIdempotent(t *testing.T) {
	s := New(NewMemoryBackend())
	recs := []Pair{pair("a", `{"v":1}`), pair("b", `{"v":2}`)}

	for i := 0; i < 3; i++ {
		if _, err := s.UpsertRecords(ContainerThreads, recs); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	got, err := s.Records(ContainerThreads)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records after repeated upsert, got %d", len(got))
	}
}

func TestUpsertRecordsReplacesInPlace(t *testing.T) {
	s := New(NewMemoryBackend())
	if _, err := s.UpsertRecords(ContainerStories, []Pair{pair("a", `1`), pair("b", `2`), pair("c", `3`)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.UpsertRecords(ContainerStories, []Pair{pair("b", `20`), pair("d", `4`)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.Records(ContainerStories)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	wantKeys := []string{"a", "b", "c", "d"}
	if len(got) != len(wantKeys) {
		t.Fatalf("expected %d records, got %d", len(wantKeys), len(got))
	}
	for i, k := range wantKeys {
		if got[i].Key != k {
			t.Fatalf("position %d: expected key %q, got %q", i, k, got[i].Key)
		}
	}
	if string(got[1].Record) != `20` {
		t.Fatalf("expected replaced record at b, got %s", got[1].Record)
	}
}

func TestUpsertRecordsSkipsEmptyKeys(t *testing.T) {
	s := New(NewMemoryBackend())
	n, err := s.UpsertRecords(ContainerThreads, []Pair{pair("", `1`), {Key: "x"}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 applied, got %d", n)
	}
}

func TestUpsertThreadsResolvesIdentity(t *testing.T) {
	s := New(NewMemoryBackend())
	items := []json.RawMessage{
		json.RawMessage(`{"post":{"code":"abc"},"code":"outer"}`),
		json.RawMessage(`{"code":"xyz"}`),
		json.RawMessage(`{"caption":"no identity"}`),
		json.RawMessage(`null`),
		nil,
	}
	n, err := s.UpsertThreads(items)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 merged, got %d", n)
	}
	got, err := s.Threads()
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if got[0].Key != "abc" || got[1].Key != "xyz" {
		t.Fatalf("unexpected keys: %q %q", got[0].Key, got[1].Key)
	}
}

func TestUserIdentityBothHalves(t *testing.T) {
	s := New(NewMemoryBackend())
	if err := s.UpsertUserIdentity("alice", "101"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	id, ok, err := s.LookupUserID("alice")
	if err != nil || !ok || id != "101" {
		t.Fatalf("lookup id: got %q ok=%v err=%v", id, ok, err)
	}
	name, ok, err := s.LookupUsername("101")
	if err != nil || !ok || name != "alice" {
		t.Fatalf("lookup name: got %q ok=%v err=%v", name, ok, err)
	}
}

func TestUserIdentityLastWriteWins(t *testing.T) {
	s := New(NewMemoryBackend())
	if err := s.UpsertUserIdentity("alice", "101"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertUserIdentity("alice", "202"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	id, _, err := s.LookupUserID("alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if id != "202" {
		t.Fatalf("expected latest id 202, got %q", id)
	}
	nameToID, _, err := s.UserIdentity()
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if len(nameToID) != 1 {
		t.Fatalf("expected single forward entry, got %d", len(nameToID))
	}
}

func TestResetUserIdentityClearsOnlyIdentity(t *testing.T) {
	s := New(NewMemoryBackend())
	if err := s.UpsertUserIdentity("alice", "101"); err != nil {
		t.Fatalf("upsert identity: %v", err)
	}
	if _, err := s.UpsertRecords(ContainerThreads, []Pair{pair("t1", `1`)}); err != nil {
		t.Fatalf("upsert threads: %v", err)
	}
	if err := s.ResetUserIdentity(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	nameToID, idToName, err := s.UserIdentity()
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if len(nameToID) != 0 || len(idToName) != 0 {
		t.Fatalf("identity not cleared: %d/%d", len(nameToID), len(idToName))
	}
	threads, err := s.Threads()
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("threads container must survive reset, got %d entries", len(threads))
	}
}

func TestUpsertReelsMediaEvictsOverlap(t *testing.T) {
	s := New(NewMemoryBackend())
	seed := models.ReelsMediaTray{
		ReelsMedia: []json.RawMessage{
			json.RawMessage(`{"id":"A","v":1}`),
			json.RawMessage(`{"id":"B","v":1}`),
		},
	}
	if err := s.UpsertReelsMedia(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	next := models.ReelsMediaTray{
		Reels: map[string]json.RawMessage{
			"B": json.RawMessage(`{"seen":true}`),
		},
		ReelsMedia: []json.RawMessage{
			json.RawMessage(`{"id":"B","v":2}`),
			json.RawMessage(`{"id":"C","v":1}`),
		},
	}
	if err := s.UpsertReelsMedia(next); err != nil {
		t.Fatalf("merge: %v", err)
	}
	got, err := s.ReelsMedia()
	if err != nil {
		t.Fatalf("reels media: %v", err)
	}
	wantKeys := []string{"A", "B", "C"}
	if len(got) != len(wantKeys) {
		t.Fatalf("expected %d entries, got %d", len(wantKeys), len(got))
	}
	for i, k := range wantKeys {
		if got[i].Key != k {
			t.Fatalf("position %d: expected %q, got %q", i, k, got[i].Key)
		}
	}
	var probe struct {
		V int `json:"v"`
	}
	if err := json.Unmarshal(got[1].Record, &probe); err != nil || probe.V != 2 {
		t.Fatalf("expected incoming B to win: %s", got[1].Record)
	}
	summary, err := s.ReelsSummary()
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if _, ok := summary["B"]; !ok {
		t.Fatalf("summary not overlaid: %v", summary)
	}
}

func TestUpsertReelsMediaRejectsMissingID(t *testing.T) {
	s := New(NewMemoryBackend())
	tray := models.ReelsMediaTray{
		ReelsMedia: []json.RawMessage{json.RawMessage(`{"v":1}`)},
	}
	if err := s.UpsertReelsMedia(tray); err == nil {
		t.Fatal("expected error for entry without id")
	}
	got, err := s.ReelsMedia()
	if err != nil {
		t.Fatalf("reels media: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("failed merge must not write, got %d entries", len(got))
	}
}

func TestPruneReelsMedia(t *testing.T) {
	s := New(NewMemoryBackend())
	old := time.Now().Add(-48 * time.Hour).Unix()
	fresh := time.Now().Unix()
	tray := models.ReelsMediaTray{
		ReelsMedia: []json.RawMessage{
			json.RawMessage(fmt.Sprintf(`{"id":"old","taken_at":%d}`, old)),
			json.RawMessage(fmt.Sprintf(`{"id":"fresh","taken_at":%d}`, fresh)),
			json.RawMessage(`{"id":"untimed"}`),
		},
	}
	if err := s.UpsertReelsMedia(tray); err != nil {
		t.Fatalf("seed: %v", err)
	}
	removed, err := s.PruneReelsMedia(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	got, err := s.ReelsMedia()
	if err != nil {
		t.Fatalf("reels media: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected fresh and untimed kept, got %d", len(got))
	}
	for _, p := range got {
		if p.Key == "old" {
			t.Fatal("old entry survived prune")
		}
	}
}

func TestStorageFailureSurfaced(t *testing.T) {
	s := New(failingBackend{})
	if _, err := s.UpsertRecords(ContainerThreads, []Pair{pair("a", `1`)}); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if err := s.UpsertUserIdentity("alice", "101"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if err := s.UpsertReelsMedia(models.ReelsMediaTray{ReelsMedia: []json.RawMessage{json.RawMessage(`{"id":"x"}`)}}); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestCorruptContainerReplaced(t *testing.T) {
	b := NewMemoryBackend()
	if err := b.SetAll(map[string][]byte{ContainerThreads: []byte(`{{not json`)}); err != nil {
		t.Fatalf("seed corrupt: %v", err)
	}
	s := New(b)
	if _, err := s.UpsertRecords(ContainerThreads, []Pair{pair("a", `1`)}); err != nil {
		t.Fatalf("upsert over corrupt container: %v", err)
	}
	got, err := s.Records(ContainerThreads)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(got) != 1 || got[0].Key != "a" {
		t.Fatalf("corrupt container not replaced: %v", got)
	}
}

func TestConcurrentUpsertsLoseNothing(t *testing.T) {
	s := New(NewMemoryBackend())
	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				if _, err := s.UpsertRecords(ContainerThreads, []Pair{pair(key, `1`)}); err != nil {
					t.Errorf("upsert %s: %v", key, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	got, err := s.Records(ContainerThreads)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(got) != workers*perWorker {
		t.Fatalf("lost updates: expected %d records, got %d", workers*perWorker, len(got))
	}
}

func TestPairJSONShape(t *testing.T) {
	p := pair("k", `{"v":1}`)
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `["k",{"v":1}]` {
		t.Fatalf("unexpected wire shape: %s", b)
	}
	var back Pair
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Key != "k" || string(back.Record) != `{"v":1}` {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if err := json.Unmarshal([]byte(`["only one"]`), &back); err == nil {
		t.Fatal("expected error for 1-element pair")
	}
}
