// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const readyProbeTimeout = 5 * time.Second

// probeRoutes serves the health endpoints.
type probeRoutes struct {
	pinger Pinger
}

// ProbeRouter creates the router for /health, /live and /ready.
func ProbeRouter(pinger Pinger) http.Handler {
	routes := &probeRoutes{pinger: pinger}
	r := chi.NewRouter()
	r.Get("/health", routes.health)
	r.Get("/live", routes.health)
	r.Get("/ready", routes.ready)
	return r
}

func (*probeRoutes) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready reports 503 until the database answers a ping, so orchestrators
// hold traffic while the pool is still connecting.
func (p *probeRoutes) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
	defer cancel()

	if err := p.pinger.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
