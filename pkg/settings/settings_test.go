package settings

import (
	"testing"

	"igvault/pkg/models"
)

func TestSeedDefaults(t *testing.T) {
	p := MapProvider{
		models.SettingReplaceJpegWithJpg: false, // user turned it off
	}
	if err := SeedDefaults(p); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for _, name := range models.Settings {
		v, ok, err := p.Get(name)
		if err != nil || !ok {
			t.Fatalf("flag %s absent after seed: ok=%v err=%v", name, ok, err)
		}
		if name == models.SettingReplaceJpegWithJpg {
			if v {
				t.Fatal("seed must not overwrite a present flag")
			}
			continue
		}
		if !v {
			t.Fatalf("flag %s seeded to false", name)
		}
	}
}

func TestSeedDefaultsIdempotent(t *testing.T) {
	p := MapProvider{}
	if err := SeedDefaults(p); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := p.Set(models.Settings[1], false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SeedDefaults(p); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if v, _, _ := p.Get(models.Settings[1]); v {
		t.Fatal("reseed overwrote an existing flag")
	}
}
