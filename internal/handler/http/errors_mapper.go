// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/internal/sync"
	"github.com/MKhiriev/go-row-sync/models"
)

// Error kinds carried in the wire envelope. The adapter maps them back to
// the engine sentinels so errors.Is works across the transport.
const (
	kindMissingScope     = "missing_scope"
	kindSetupMismatch    = "setup_mismatch"
	kindOutOfDate        = "out_of_date"
	kindSnapshotNotFound = "snapshot_not_found"
	kindSchemaInvalid    = "schema_invalid"
	kindApplyAborted     = "apply_aborted"
	kindBadRequest       = "bad_request"
	kindInternal         = "internal"
)

// writeError maps an engine error onto an HTTP status and the JSON error
// envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromRequest(r)

	kind := kindInternal
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, sync.ErrMissingScope), errors.Is(err, provider.ErrScopeNotFound):
		kind, status = kindMissingScope, http.StatusNotFound
	case errors.Is(err, sync.ErrSnapshotNotFound):
		kind, status = kindSnapshotNotFound, http.StatusNotFound
	case errors.Is(err, sync.ErrSetupMismatch):
		kind, status = kindSetupMismatch, http.StatusConflict
	case errors.Is(err, sync.ErrOutOfDate):
		// Gone: the retained history no longer reaches the client.
		kind, status = kindOutOfDate, http.StatusGone
	case errors.Is(err, provider.ErrMissingTable),
		errors.Is(err, provider.ErrMissingColumn),
		errors.Is(err, provider.ErrMissingPrimaryKey):
		kind, status = kindSchemaInvalid, http.StatusBadRequest
	case errors.Is(err, sync.ErrApplyAborted), errors.Is(err, provider.ErrConstraintViolation):
		kind, status = kindApplyAborted, http.StatusConflict
	case errors.Is(err, ErrInvalidRequestBody), errors.Is(err, ErrClientIDMismatch):
		kind, status = kindBadRequest, http.StatusBadRequest
	}

	envelope := models.ErrorResponse{Kind: kind, Message: err.Error()}
	var syncErr *sync.Error
	if errors.As(err, &syncErr) {
		envelope.Scope = syncErr.Scope
		envelope.Table = syncErr.Table
	}

	log.Err(err).Str("kind", kind).Int("status", status).Msg("request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(envelope); encodeErr != nil {
		log.Err(encodeErr).Msg("failed to encode error response")
	}
}
