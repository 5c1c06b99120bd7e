package merge

import (
	"encoding/json"
	"fmt"
	"time"

	"igvault/pkg/identity"
	"igvault/pkg/logger"
	"igvault/pkg/models"
)

// reelsLock is the shared container name guarding the reel-media collection
// and the reels summary object, which are always written together.
const reelsLock = "reels"

// UpsertReelsMedia merges a reels_media tray capture. Stored entries whose
// id appears in the incoming batch are removed, then the incoming batch is
// appended in received order: incoming data always wins for overlapping ids
// while non-overlapping prior entries are preserved. The reels summary
// object is shallow-overlaid, new values winning per key. A tray entry
// without an id is an upstream contract violation and fails the whole merge.
func (s *Store) UpsertReelsMedia(tray models.ReelsMediaTray) error {
	incoming := make([]Pair, 0, len(tray.ReelsMedia))
	ids := make(map[string]struct{}, len(tray.ReelsMedia))
	for _, entry := range tray.ReelsMedia {
		id, err := identity.ReelMediaKey(entry)
		if err != nil {
			return fmt.Errorf("reel media entry: %w", err)
		}
		ids[id] = struct{}{}
		incoming = append(incoming, Pair{Key: id, Record: entry})
	}

	m := s.lockContainer(reelsLock)
	m.Lock()
	defer m.Unlock()

	stored, err := s.loadPairs(keyReelsMedia)
	if err != nil {
		return err
	}
	remainder := stored[:0:0]
	for _, p := range stored {
		if _, overlap := ids[p.Key]; !overlap {
			remainder = append(remainder, p)
		}
	}
	merged := append(remainder, incoming...)

	summary, err := s.loadReelsSummary()
	if err != nil {
		return err
	}
	for k, v := range tray.Reels {
		summary[k] = v
	}

	mb, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	sb, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	if err := s.backend.SetAll(map[string][]byte{
		keyReelsMedia: mb,
		keyReels:      sb,
	}); err != nil {
		return fmt.Errorf("%w: write reels media: %v", ErrStorage, err)
	}
	logger.Info("reels_media_merged", "incoming", len(incoming), "evicted", len(stored)-len(remainder), "total", len(merged))
	return nil
}

// ReelsMedia returns the stored reel-media pair list in append order.
func (s *Store) ReelsMedia() ([]Pair, error) {
	m := s.lockContainer(reelsLock)
	m.Lock()
	defer m.Unlock()
	return s.loadPairs(keyReelsMedia)
}

// ReelsSummary returns the stored reels summary object.
func (s *Store) ReelsSummary() (map[string]json.RawMessage, error) {
	m := s.lockContainer(reelsLock)
	m.Lock()
	defer m.Unlock()
	return s.loadReelsSummary()
}

func (s *Store) loadReelsSummary() (map[string]json.RawMessage, error) {
	raw, ok, err := s.backend.Get(keyReels)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, keyReels, err)
	}
	summary := map[string]json.RawMessage{}
	if ok && len(raw) > 0 {
		_ = json.Unmarshal(raw, &summary)
	}
	return summary, nil
}

// PruneReelsMedia removes reel-media entries whose taken_at timestamp is
// older than the cutoff. Entries without a parseable taken_at are kept.
// Returns the number of entries removed.
func (s *Store) PruneReelsMedia(cutoff time.Time) (int, error) {
	m := s.lockContainer(reelsLock)
	m.Lock()
	defer m.Unlock()

	stored, err := s.loadPairs(keyReelsMedia)
	if err != nil {
		return 0, err
	}
	kept := stored[:0:0]
	for _, p := range stored {
		var probe struct {
			TakenAt int64 `json:"taken_at"`
		}
		if err := json.Unmarshal(p.Record, &probe); err == nil && probe.TakenAt > 0 {
			if time.Unix(probe.TakenAt, 0).Before(cutoff) {
				continue
			}
		}
		kept = append(kept, p)
	}
	removed := len(stored) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.savePairs(keyReelsMedia, kept); err != nil {
		return 0, err
	}
	logger.Info("reels_media_pruned", "removed", removed, "kept", len(kept))
	return removed, nil
}
