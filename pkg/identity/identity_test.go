package identity

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestThreadKey(t *testing.T) {
	cases := []struct {
		name string
		item string
		key  string
		ok   bool
	}{
		{"nested post code wins", `{"post":{"code":"inner"},"code":"outer"}`, "inner", true},
		{"top level code fallback", `{"code":"outer"}`, "outer", true},
		{"no code", `{"caption":"hello"}`, "", false},
		{"empty nested code falls back", `{"post":{"code":""},"code":"outer"}`, "outer", true},
		{"not an object", `[1,2,3]`, "", false},
		{"invalid json", `{{`, "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			key, ok := ThreadKey(json.RawMessage(c.item))
			if ok != c.ok || key != c.key {
				t.Fatalf("got (%q, %v), want (%q, %v)", key, ok, c.key, c.ok)
			}
		})
	}
}

func TestReelMediaKey(t *testing.T) {
	key, err := ReelMediaKey(json.RawMessage(`{"id":"3141"}`))
	if err != nil || key != "3141" {
		t.Fatalf("string id: got (%q, %v)", key, err)
	}
	key, err = ReelMediaKey(json.RawMessage(`{"id":3141}`))
	if err != nil || key != "3141" {
		t.Fatalf("numeric id: got (%q, %v)", key, err)
	}
	if _, err := ReelMediaKey(json.RawMessage(`{"pk":"3141"}`)); !errors.Is(err, ErrMissingID) {
		t.Fatalf("missing id: expected ErrMissingID, got %v", err)
	}
	if _, err := ReelMediaKey(json.RawMessage(`{"id":null}`)); !errors.Is(err, ErrMissingID) {
		t.Fatalf("null id: expected ErrMissingID, got %v", err)
	}
	if _, err := ReelMediaKey(json.RawMessage(`not json`)); err == nil {
		t.Fatal("invalid json: expected error")
	}
}
