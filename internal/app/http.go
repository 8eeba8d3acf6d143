package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"snapfeed/pkg/api"
	"snapfeed/pkg/api/handlers"
	"snapfeed/pkg/auth"
	"snapfeed/pkg/store"
)

// setupHTTPHandlers sets up all HTTP handlers on the provided mux.
func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", readyzHandler(a.store, a.version))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	mux.Handle("/", api.Handler(api.Deps{
		Store:    a.store,
		Cache:    a.cache,
		Limiter:  a.limiter,
		Stream:   a.stream,
		Notifier: a.notifier(),
		Sec:      a.secConfig(),
	}))
}

// notifier returns the relay as a handlers.Notifier, or nil when no socket
// server is configured. The explicit nil check matters: a typed nil inside
// a non-nil interface would defeat the handlers' guard.
func (a *App) notifier() handlers.Notifier {
	if a.relay == nil {
		return nil
	}
	return a.relay
}

func (a *App) secConfig() auth.SecConfig {
	return auth.SecConfig{
		AllowedOrigins: append([]string{}, a.eff.Config.Security.CORS.AllowedOrigins...),
		BackendKeys:    a.eff.BackendKeys,
		FrontendKeys:   a.eff.FrontendKeys,
		SigningKeys:    a.eff.SigningKeys,
		RateMax:        a.eff.Config.Security.RateLimit.Max,
		RateWindowMS:   a.eff.Config.Security.RateLimit.WindowMS,
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readyzHandler(s *store.Store, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !s.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready"}`))
			return
		}
		if version == "" {
			version = "dev"
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","version":"` + version + `","dbSize":"` + s.DiskUsageHuman() + `"}`))
	}
}

// startHTTP builds the handler, starts the HTTP server in a goroutine and
// returns a channel that will carry any server error.
func (a *App) startHTTP() <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
