// Package settings stores the fixed list of boolean configuration flags in
// the durable store, mirroring the host's synced preference storage.
package settings

import (
	"igvault/pkg/logger"
	"igvault/pkg/models"
	"igvault/pkg/store"
)

// Provider reads and writes named boolean flags. Get's second return
// reports whether the flag is present at all.
type Provider interface {
	Get(name string) (value bool, ok bool, err error)
	Set(name string, value bool) error
}

const keyPrefix = "config:"

// StoreProvider persists flags in the pebble substrate.
type StoreProvider struct{}

func (StoreProvider) Get(name string) (bool, bool, error) {
	v, ok, err := store.GetKey(keyPrefix + name)
	if err != nil || !ok {
		return false, false, err
	}
	return string(v) == "true", true, nil
}

func (StoreProvider) Set(name string, value bool) error {
	v := "false"
	if value {
		v = "true"
	}
	return store.SaveKey(keyPrefix+name, []byte(v))
}

// MapProvider is an in-memory Provider for tests.
type MapProvider map[string]bool

func (m MapProvider) Get(name string) (bool, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

func (m MapProvider) Set(name string, value bool) error {
	m[name] = value
	return nil
}

// SeedDefaults sets every flag in the fixed settings list that is absent to
// true. Runs on first install; already-present flags are left untouched.
func SeedDefaults(p Provider) error {
	for _, name := range models.Settings {
		_, ok, err := p.Get(name)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := p.Set(name, true); err != nil {
			return err
		}
		logger.Info("setting_seeded", "name", name)
	}
	return nil
}
