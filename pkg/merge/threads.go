package merge

import (
	"encoding/json"

	"igvault/pkg/identity"
	"igvault/pkg/logger"
)

// UpsertThreads merges thread items into the threads container. Nil items
// and items without a resolvable identity key are silently excluded (they
// carry no stable identity); for the rest, a newer record with the same key
// replaces the older one in place. Returns the number of items merged.
func (s *Store) UpsertThreads(items []json.RawMessage) (int, error) {
	var recs []Pair
	for _, item := range items {
		if len(item) == 0 || string(item) == "null" {
			continue
		}
		key, ok := identity.ThreadKey(item)
		if !ok {
			logger.Debug("thread_item_without_code_skipped")
			continue
		}
		recs = append(recs, Pair{Key: key, Record: item})
	}
	n, err := s.UpsertRecords(ContainerThreads, recs)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("threads_merged", "count", n)
	}
	return n, nil
}

// Threads returns the stored thread pair list.
func (s *Store) Threads() ([]Pair, error) {
	return s.Records(ContainerThreads)
}
