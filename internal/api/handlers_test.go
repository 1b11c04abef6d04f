// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forgekeeper/forgekeeper/internal/models"
	"github.com/forgekeeper/forgekeeper/internal/supervisorerr"
)

type fakeServerStore struct {
	servers []*models.Server
	pingErr error
}

func (f *fakeServerStore) ListServers(ctx context.Context) ([]*models.Server, error) {
	return f.servers, nil
}

func (f *fakeServerStore) Ping(ctx context.Context) error { return f.pingErr }

type fakeStatusLookup struct {
	statuses map[string]models.Status
	crashed  map[string]*supervisorerr.CrashDetails
}

func (f *fakeStatusLookup) KnownStatus(id string) (models.Status, bool) {
	s, ok := f.statuses[id]
	return s, ok
}

func (f *fakeStatusLookup) CrashDetails(id string) (*supervisorerr.CrashDetails, bool) {
	d, ok := f.crashed[id]
	return d, ok
}

func TestHandler_Healthz(t *testing.T) {
	tests := []struct {
		name      string
		pingErr   error
		wantReady bool
	}{
		{"database reachable", nil, true},
		{"database unreachable", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeServerStore{pingErr: tt.pingErr}, &fakeStatusLookup{}, nil, time.Now())

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			w := httptest.NewRecorder()
			h.Healthz(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
		})
	}
}

func TestHandler_Serversz(t *testing.T) {
	id := uuid.New()
	store := &fakeServerStore{
		servers: []*models.Server{
			{ID: id, Name: "survival", Status: models.PersistedRunning},
		},
	}
	lookup := &fakeStatusLookup{statuses: map[string]models.Status{id.String(): models.StatusRunning}}

	h := NewHandler(store, lookup, nil, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/serversz", nil)
	w := httptest.NewRecorder()
	h.Serversz(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHandler_Serversz_UnknownStatus(t *testing.T) {
	id := uuid.New()
	store := &fakeServerStore{
		servers: []*models.Server{
			{ID: id, Name: "creative", Status: models.PersistedStopped},
		},
	}
	h := NewHandler(store, &fakeStatusLookup{statuses: map[string]models.Status{}}, nil, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/serversz", nil)
	w := httptest.NewRecorder()
	h.Serversz(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
