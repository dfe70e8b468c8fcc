// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/models"
	"github.com/go-chi/chi/v5"
)

// ensureScope handles POST /api/sync/scope: resolve (and on first use
// provision) a scope, returning the authoritative schema snapshot.
func (h *Handler) ensureScope(w http.ResponseWriter, r *http.Request) {
	var req models.EnsureScopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", ErrInvalidRequestBody, err))
		return
	}
	if !h.authorized(w, r, &req.ClientID) {
		return
	}

	resp, err := h.coordinator.EnsureScope(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// syncChanges handles POST /api/sync/changes: apply the client's upload,
// then select everything it has not seen yet.
func (h *Handler) syncChanges(w http.ResponseWriter, r *http.Request) {
	var req models.SyncChangesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", ErrInvalidRequestBody, err))
		return
	}
	if !h.authorized(w, r, &req.ClientID) {
		return
	}

	resp, err := h.coordinator.SyncChanges(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// getSnapshot handles GET /api/sync/snapshot/{scope}: the retained snapshot
// with part payloads inlined.
func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	info, err := h.coordinator.GetSnapshot(r.Context(), chi.URLParam(r, "scope"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, info)
}

// createSnapshot handles POST /api/sync/snapshot/{scope}: export the scope
// at its current watermark, superseding any prior snapshot.
func (h *Handler) createSnapshot(w http.ResponseWriter, r *http.Request) {
	info, err := h.coordinator.CreateSnapshot(r.Context(), chi.URLParam(r, "scope"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, models.SnapshotInfo{
		ScopeName: info.ScopeName,
		Watermark: info.Watermark,
	})
}

// deleteMetadatas handles POST /api/sync/cleanup/{scope}?before=N: drop
// tracking records at or below the given watermark.
func (h *Handler) deleteMetadatas(w http.ResponseWriter, r *http.Request) {
	before, err := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: before must be an integer watermark", ErrInvalidRequestBody))
		return
	}

	deleted, err := h.coordinator.DeleteMetadatas(r.Context(), chi.URLParam(r, "scope"), before)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]int64{"deleted": deleted})
}

// authorized verifies the request body's client id against the token
// subject. An empty body id is filled in from the token so callers may omit
// it.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request, clientID *string) bool {
	subject := clientIDFromContext(r.Context())
	if *clientID == "" {
		*clientID = subject
		return true
	}
	if *clientID != subject {
		writeError(w, r, ErrClientIDMismatch)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are gone; log only.
		logger.FromRequest(r).Err(err).Msg("failed to encode response")
	}
}
