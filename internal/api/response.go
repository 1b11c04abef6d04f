// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/forgekeeper/forgekeeper/internal/logging"
)

// Response is the standard JSON envelope for every endpoint in this
// package.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
	Meta    meta        `json:"meta"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type meta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes this package returns.
const (
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeNotReady         = "NOT_READY"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	resp.Meta.Timestamp = time.Now()
	resp.Meta.RequestID = logging.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func writeSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	writeJSON(w, r, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, r, status, Response{Success: false, Error: &errorBody{Code: code, Message: message}})
}
