// Package identity computes the stable keys used to decide whether two
// captured records refer to the same logical item.
package identity

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrMissingID reports a reel-media entry without an id field. Upstream
// parsers are contractually required to supply one, so this fails loudly
// rather than being skipped.
var ErrMissingID = errors.New("reel media entry has no id")

// ThreadKey resolves the identity key for a thread item: the nested
// post.code when present, otherwise the top-level code. Items with neither
// carry no stable identity and report ok=false; callers exclude them from
// the merge.
func ThreadKey(item json.RawMessage) (key string, ok bool) {
	var probe struct {
		Post struct {
			Code string `json:"code"`
		} `json:"post"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal(item, &probe); err != nil {
		return "", false
	}
	if probe.Post.Code != "" {
		return probe.Post.Code, true
	}
	if probe.Code != "" {
		return probe.Code, true
	}
	return "", false
}

// ReelMediaKey resolves the identity key for a reel-media entry: its id
// field. The id may arrive as a JSON string or number.
func ReelMediaKey(entry json.RawMessage) (string, error) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(entry, &probe); err != nil {
		return "", err
	}
	id := string(bytes.Trim(bytes.TrimSpace(probe.ID), `"`))
	if id == "" || id == "null" {
		return "", ErrMissingID
	}
	return id, nil
}
