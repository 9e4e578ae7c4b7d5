// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/gridwatch/internal/broadcast"
	"github.com/relabs-tech/gridwatch/internal/health"
	"github.com/relabs-tech/gridwatch/internal/telemetry"
)

// WebDeps is what the HTTP surface reads from.
type WebDeps struct {
	Cache          *telemetry.Cache
	Hub            *broadcast.Hub
	Health         *health.Server
	AllowedOrigins []string
	WriteTimeout   time.Duration
	Log            zerolog.Logger
}

// NewWebMux builds the routes:
//
//	GET /api/telemetry/latest  latest cached record, 204 before the first frame
//	GET /ws                    live events
//	GET /health                liveness
func NewWebMux(d WebDeps) *http.ServeMux {
	log := d.Log.With().Str("component", "web").Logger()
	upgrader := broadcast.NewUpgrader(d.AllowedOrigins)

	mux := http.NewServeMux()
	mux.Handle("GET /api/telemetry/latest", withCORS(d.AllowedOrigins, handleLatest(d.Cache, log)))
	mux.Handle("GET /ws", broadcast.WebsocketHandler(d.Hub, upgrader, d.WriteTimeout, d.Log))
	mux.HandleFunc("GET /health", d.Health.HandleHealth)
	return mux
}

func handleLatest(cache *telemetry.Cache, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := cache.Get()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rec); err != nil {
			log.Warn().Err(err).Msg("json encode error")
		}
	}
}

// withCORS lets the dashboard origins read the polling endpoint.
func withCORS(allowed []string, next http.Handler) http.Handler {
	allowAll := len(allowed) == 0 || slices.Contains(allowed, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case slices.Contains(allowed, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}
