// The snapfeed-socket server hosts the broadcast hub: websocket clients
// join per-user rooms and receive notification events relayed by the API
// server or by other clients.
package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snapfeed/pkg/config"
	"snapfeed/pkg/logger"
	"snapfeed/pkg/shutdown"
	"snapfeed/pkg/sockethub"
)

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseFlags()
	eff, err := config.LoadEffective(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(eff.Config.Logging.Level)

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	hub := sockethub.New()
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/socket", func(w http.ResponseWriter, r *http.Request) {
		sockethub.ServeWS(hub, w, r)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: eff.SocketAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("socket_server_started", "addr", eff.SocketAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, c := context.WithTimeout(context.Background(), 10*time.Second)
		defer c()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			shutdown.Abort("socket server failed", err, "")
		}
	}
	logger.Info("socket_server_stopped")
}
