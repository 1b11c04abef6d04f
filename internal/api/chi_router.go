// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgekeeper/forgekeeper/internal/logging"
)

// NewRouter builds the thin external boundary: health/readiness, a
// fleet status snapshot, the WebSocket upgrade endpoint, and the
// Prometheus scrape endpoint.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/healthz", h.Healthz)
	r.Get("/serversz", h.Serversz)
	r.Get("/ws", h.WS)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestIDWithLogging wraps chi's own RequestID middleware so the
// generated ID also ends up in internal/logging's context
// (correlation_id, request_id), making logging.Ctx(r.Context()) usable
// in every handler.
func requestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			ctx = logging.ContextWithNewCorrelationID(ctx)
			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
