// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package provider

import "errors"

var (
	// ErrMissingTable is returned when a setup entry names a table the
	// introspected schema does not contain.
	ErrMissingTable = errors.New("table not found in schema")

	// ErrMissingColumn is returned when a setup entry lists a column the
	// table does not define.
	ErrMissingColumn = errors.New("column not found in table")

	// ErrMissingPrimaryKey is returned for a table without a usable
	// primary key; such tables cannot be tracked.
	ErrMissingPrimaryKey = errors.New("table has no usable primary key")

	// ErrScopeNotFound is returned by GetScopeInfo and GetScopeClientInfo
	// when no record exists.
	ErrScopeNotFound = errors.New("scope is not found")

	// ErrConnectionFailure wraps transient connection-level failures;
	// callers may retry these through the retry policy.
	ErrConnectionFailure = errors.New("connection failure")

	// ErrConstraintViolation wraps row-level integrity failures (missing
	// parent row, unique collisions) surfaced during apply.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrExecutingQuery wraps failures of query execution.
	ErrExecutingQuery = errors.New("error executing query")

	// ErrScanningRow wraps failures while scanning a result row.
	ErrScanningRow = errors.New("error scanning row")

	// ErrScanningRows wraps errors detected after result iteration.
	ErrScanningRows = errors.New("error iterating rows")
)
