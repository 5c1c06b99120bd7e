package app

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"net/http"

	"igvault/internal/retention"
	"igvault/pkg/config"
	"igvault/pkg/merge"
	"igvault/pkg/router"
	"igvault/pkg/settings"
	"igvault/pkg/sink"
	"igvault/pkg/state"
	"igvault/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	merged   *merge.Store
	settings settings.Provider
	router   *router.Router

	srv *http.Server
}

// New initializes resources that do not require a running context: the
// state directory layout, the pebble store, seeded settings and the
// session reset of the user-identity containers. It does not start the
// HTTP server; call Run to start it and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if eff.DBPath == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("invalid state layout under %s: %w", eff.DBPath, err)
	}

	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}

	prov := settings.StoreProvider{}
	if err := settings.SeedDefaults(prov); err != nil {
		return nil, fmt.Errorf("failed to seed settings: %w", err)
	}

	merged := merge.New(merge.PebbleBackend{})

	// The story-owner lookup maps are session-scoped: each process start
	// begins with empty maps, matching a fresh capture session.
	if err := merged.ResetUserIdentity(); err != nil {
		return nil, fmt.Errorf("failed to reset user identity: %w", err)
	}

	rt := router.New(router.Config{
		Store:    merged,
		Settings: prov,
		Sink:     sink.FileSink{Dir: eff.Config.Export.DownloadDir},
		TmpDir:   state.PathsVar.Tmp,
	})

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		merged:    merged,
		settings:  prov,
		router:    rt,
	}
	return a, nil
}

// Run starts the retention scheduler (if enabled) and the HTTP server,
// and blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	retention.SetStore(a.merged)
	cancelRetention, err := retention.Start(ctx, a.eff)
	if err != nil {
		return err
	}
	defer cancelRetention()

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return store.Close()
	case err := <-errCh:
		return err
	}
}
