// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MKhiriev/go-row-sync/internal/sync"
	"github.com/MKhiriev/go-row-sync/models"
	"github.com/go-resty/resty/v2"
)

// mapHTTPError turns a non-2xx response into an error. The hub's JSON
// envelope carries an error kind; recognised kinds map back onto the engine
// sentinels so errors.Is works across the transport — an out-of-date reply
// triggers the agent's OnOutdated hook exactly like an in-process one.
func mapHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))

	var envelope models.ErrorResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err == nil && envelope.Kind != "" {
		if sentinel := sentinelForKind(envelope.Kind); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, envelope.Message)
		}
		body = envelope.Message
	}

	switch resp.StatusCode() {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, body)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, body)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, body)
	case http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrInternalServerError, body)
	default:
		if body == "" {
			body = http.StatusText(resp.StatusCode())
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode(), body)
	}
}

func sentinelForKind(kind string) error {
	switch kind {
	case "missing_scope":
		return sync.ErrMissingScope
	case "setup_mismatch":
		return sync.ErrSetupMismatch
	case "out_of_date":
		return sync.ErrOutOfDate
	case "snapshot_not_found":
		return sync.ErrSnapshotNotFound
	case "apply_aborted":
		return sync.ErrApplyAborted
	default:
		return nil
	}
}
