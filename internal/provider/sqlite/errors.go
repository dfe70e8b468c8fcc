// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sqlite

import (
	"errors"

	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/mattn/go-sqlite3"
)

// ErrorClassifier implements [provider.ErrorClassificator] for SQLite. It
// inspects the sqlite3 result code returned by the mattn driver and maps it
// to a [provider.ErrorClassification] value.
type ErrorClassifier struct{}

// NewErrorClassifier constructs an [ErrorClassifier] ready for use.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify implements [provider.ErrorClassificator]. SQLITE_BUSY and
// SQLITE_LOCKED mean another connection holds a lock the statement needs;
// both clear on their own, so they are the retryable class. Constraint,
// type-mismatch and misuse errors never succeed on retry.
func (c *ErrorClassifier) Classify(err error) provider.ErrorClassification {
	if err == nil {
		return provider.NonRetryable
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return provider.Retryable
		}
		return provider.NonRetryable
	}

	// Default: treat unrecognised errors as non-retryable.
	return provider.NonRetryable
}

// isConstraintViolation reports whether err is a SQLITE_CONSTRAINT error,
// the kind the apply engine routes through its row-error resolution hook.
func isConstraintViolation(err error) bool {
	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	return liteErr.Code == sqlite3.ErrConstraint
}
