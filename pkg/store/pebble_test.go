package store

import (
	"testing"
)

// The package holds a single global handle, so one test exercises the whole
// lifecycle in sequence.
func TestStoreLifecycle(t *testing.T) {
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		if err := Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}()

	if !Ready() {
		t.Fatal("store not ready after open")
	}

	if _, ok, err := GetKey("missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := SaveKey("container:threads", []byte(`[["a",1]]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	v, ok, err := GetKey("container:threads")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v) != `[["a",1]]` {
		t.Fatalf("unexpected value: %s", v)
	}

	if err := ApplyBatch(map[string][]byte{
		"container:stories_user_ids":   []byte(`[["alice","101"]]`),
		"container:id_to_username_map": []byte(`[["101","alice"]]`),
	}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	for _, k := range []string{"container:stories_user_ids", "container:id_to_username_map"} {
		if _, ok, err := GetKey(k); err != nil || !ok {
			t.Fatalf("batched key %s: ok=%v err=%v", k, ok, err)
		}
	}

	keys, err := ListKeys("container:")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 container keys, got %d: %v", len(keys), keys)
	}

	if err := DeleteKey("container:threads"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := GetKey("container:threads"); ok {
		t.Fatal("key present after delete")
	}
	// deleting an absent key is not an error
	if err := DeleteKey("container:threads"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}

	if DiskUsage() == 0 {
		t.Fatal("expected nonzero disk usage")
	}
}

func TestOperationsRequireOpen(t *testing.T) {
	if Ready() {
		t.Skip("global store already open")
	}
	if err := SaveKey("k", nil); err == nil {
		t.Fatal("expected error before open")
	}
	if _, _, err := GetKey("k"); err == nil {
		t.Fatal("expected error before open")
	}
}
