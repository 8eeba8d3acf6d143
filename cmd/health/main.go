// The health sidecar answers liveness probes for deployments where the API
// and socket servers sit behind one load balancer: it polls both /healthz
// endpoints and reports the aggregate on a single port.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", ":9082", "listen address")
	apiURL := flag.String("api", "http://127.0.0.1:9080/healthz", "API server health URL")
	socketURL := flag.String("socket", "http://127.0.0.1:9081/healthz", "socket server health URL")
	interval := flag.Duration("interval", 5*time.Second, "probe interval")
	flag.Parse()

	var apiOK, socketOK atomic.Bool
	probe := func(url string, ok *atomic.Bool) {
		client := &http.Client{Timeout: 3 * time.Second}
		for {
			resp, err := client.Get(url)
			if err == nil {
				ok.Store(resp.StatusCode == http.StatusOK)
				resp.Body.Close()
			} else {
				ok.Store(false)
			}
			time.Sleep(*interval)
		}
	}
	go probe(*apiURL, &apiOK)
	go probe(*socketURL, &socketOK)

	h := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health", "/healthz":
			ctx.Response.Header.Set("Content-Type", "application/json")
			a, s := apiOK.Load(), socketOK.Load()
			if a && s {
				ctx.SetStatusCode(fasthttp.StatusOK)
			} else {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			}
			_, _ = ctx.WriteString(fmt.Sprintf(`{"api":%t,"socket":%t}`, a, s))
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	fmt.Printf("health sidecar listening on %s\n", *addr)
	srv := &fasthttp.Server{
		Handler:            h,
		Name:               "snapfeed-health",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("health sidecar exit: %v\n", err)
	}
}
