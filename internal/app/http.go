package app

import (
	"context"
	"net/http"
	"time"

	"igvault/pkg/api"
	"igvault/pkg/banner"
	"igvault/pkg/security"
	"igvault/pkg/sink"
	"igvault/pkg/state"
	"igvault/pkg/telemetry"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// setupHTTPHandlers sets up all HTTP handlers on the provided router.
func (a *App) setupHTTPHandlers(r *mux.Router) {
	h := &api.API{
		Router:        a.router,
		Store:         a.merged,
		Settings:      a.settings,
		Sink:          sink.FileSink{Dir: a.eff.Config.Export.DownloadDir},
		TmpDir:        state.PathsVar.Tmp,
		MaxEventBytes: a.eff.Config.Server.MaxEventBytes.Int64(),
	}
	h.Register(r)
	r.HandleFunc("/healthz", api.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", api.Readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// startHTTP builds the handler, starts the HTTP server in a goroutine and
// returns a channel that will contain any server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	r := mux.NewRouter()
	a.setupHTTPHandlers(r)

	secCfg := security.SecConfig{
		AllowedOrigins: append([]string{}, a.eff.Config.Security.CORS.AllowedOrigins...),
		RPS:            a.eff.Config.Security.RateLimit.RPS,
		Burst:          a.eff.Config.Security.RateLimit.Burst,
		APIKeys:        map[string]struct{}{},
	}
	for _, k := range a.eff.Config.Security.APIKeys {
		secCfg.APIKeys[k] = struct{}{}
	}

	wrapped := security.AuthenticateRequestMiddleware(secCfg)(r)
	wrapped = telemetry.Middleware(wrapped)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srv.ListenAndServe()
	}()
	return errCh
}

// shutdownHTTP drains in-flight requests before the store closes.
func (a *App) shutdownHTTP() {
	if a.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.srv.Shutdown(ctx)
}
