package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func newMetricsRouter(path string, metrics http.Handler) http.Handler {
	if path == "" {
		path = "/metrics"
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Get(path, metrics.ServeHTTP)

	return r
}

func newMetricsServer(addr, path string, metrics http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           newMetricsRouter(path, metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
