// Package merge implements the dedup-merge store: per-content-type persisted
// containers with idempotent upsert-by-identity semantics. Every operation is
// a read-modify-write over the full container value; operations on the same
// container are serialized by a dedicated mutex so concurrent upserts cannot
// lose each other's updates. Distinct containers proceed independently.
package merge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrStorage marks a durable-storage failure. Callers must surface it to the
// event sender instead of swallowing it: losing a merge silently is a
// correctness bug, not a best-effort outcome.
var ErrStorage = errors.New("merge: storage failure")

// Container names for the generic keyed-record containers.
const (
	ContainerThreads      = "threads"
	ContainerStories      = "stories"
	ContainerHighlights   = "highlights"
	ContainerReelsProfile = "reels_profile"
)

// Backend keys for the remaining persisted containers.
const (
	keyStoriesUserIDs = "stories_user_ids"
	keyIDToUsername   = "id_to_username_map"
	keyReels          = "reels"
	keyReelsMedia     = "reels_media"
)

// Pair is one [key, record] element of a persisted container, serialized as
// a two-element JSON array so the stored layout stays a plain list of pairs.
type Pair struct {
	Key    string
	Record json.RawMessage
}

func (p Pair) MarshalJSON() ([]byte, error) {
	k, err := json.Marshal(p.Key)
	if err != nil {
		return nil, err
	}
	rec := p.Record
	if len(rec) == 0 {
		rec = json.RawMessage("null")
	}
	return json.Marshal([2]json.RawMessage{k, rec})
}

func (p *Pair) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	if len(arr) != 2 {
		return fmt.Errorf("pair must have exactly 2 elements, got %d", len(arr))
	}
	if err := json.Unmarshal(arr[0], &p.Key); err != nil {
		return err
	}
	p.Record = arr[1]
	return nil
}

// Store is the aggregate of all persisted containers plus their upsert
// logic, writing through an injected Backend.
type Store struct {
	backend Backend

	mu        sync.Mutex
	container map[string]*sync.Mutex
}

// New creates a Store over the given backend.
func New(b Backend) *Store {
	return &Store{backend: b, container: map[string]*sync.Mutex{}}
}

// lockContainer returns the mutex serializing read-modify-write cycles for
// one container, creating it on first use. The user-identity index and the
// reels containers each share a single mutex across their paired keys.
func (s *Store) lockContainer(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.container[name]
	if !ok {
		m = &sync.Mutex{}
		s.container[name] = m
	}
	return m
}

func (s *Store) loadPairs(key string) ([]Pair, error) {
	raw, ok, err := s.backend.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, key, err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var pairs []Pair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		// A corrupt container is replaced rather than wedging every
		// future merge.
		return nil, nil
	}
	return pairs, nil
}

func (s *Store) savePairs(key string, pairs []Pair) error {
	if pairs == nil {
		pairs = []Pair{}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return err
	}
	if err := s.backend.SetAll(map[string][]byte{key: b}); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, key, err)
	}
	return nil
}

// upsertPairs overwrites-or-inserts each record by key: existing keys are
// replaced in place, new keys appended. Last write wins per key.
func upsertPairs(pairs []Pair, recs []Pair) []Pair {
	idx := make(map[string]int, len(pairs))
	for i, p := range pairs {
		idx[p.Key] = i
	}
	for _, r := range recs {
		if i, ok := idx[r.Key]; ok {
			pairs[i] = r
			continue
		}
		idx[r.Key] = len(pairs)
		pairs = append(pairs, r)
	}
	return pairs
}

// UpsertRecords merges keyed records into the named container. Records with
// empty keys are skipped. It returns the number of records applied.
func (s *Store) UpsertRecords(container string, recs []Pair) (int, error) {
	kept := recs[:0:0]
	for _, r := range recs {
		if r.Key == "" || len(r.Record) == 0 {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return 0, nil
	}

	m := s.lockContainer(container)
	m.Lock()
	defer m.Unlock()

	pairs, err := s.loadPairs(container)
	if err != nil {
		return 0, err
	}
	pairs = upsertPairs(pairs, kept)
	if err := s.savePairs(container, pairs); err != nil {
		return 0, err
	}
	return len(kept), nil
}

// Records returns the full pair list of the named container.
func (s *Store) Records(container string) ([]Pair, error) {
	m := s.lockContainer(container)
	m.Lock()
	defer m.Unlock()
	return s.loadPairs(container)
}
