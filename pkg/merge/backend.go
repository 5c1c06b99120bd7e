package merge

import (
	"sync"

	"igvault/pkg/store"
)

// Backend is the persistence seam the merge store writes through. Get
// returns the stored value and whether the key was present. SetAll persists
// every pair in one durable write: implementations must guarantee that a
// multi-key SetAll is atomic (all keys or none).
type Backend interface {
	Get(key string) ([]byte, bool, error)
	SetAll(kvs map[string][]byte) error
}

// PebbleBackend stores container values in the process-wide pebble store
// under a fixed key prefix. Multi-key writes go through an atomic synced
// batch.
type PebbleBackend struct{}

const containerPrefix = "container:"

func (PebbleBackend) Get(key string) ([]byte, bool, error) {
	return store.GetKey(containerPrefix + key)
}

func (PebbleBackend) SetAll(kvs map[string][]byte) error {
	if len(kvs) == 1 {
		for k, v := range kvs {
			return store.SaveKey(containerPrefix+k, v)
		}
	}
	prefixed := make(map[string][]byte, len(kvs))
	for k, v := range kvs {
		prefixed[containerPrefix+k] = v
	}
	return store.ApplyBatch(prefixed)
}

// MemoryBackend is an in-process Backend for tests and tooling.
type MemoryBackend struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{m: map[string][]byte{}}
}

func (b *MemoryBackend) Get(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (b *MemoryBackend) SetAll(kvs map[string][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range kvs {
		b.m[k] = append([]byte(nil), v...)
	}
	return nil
}
