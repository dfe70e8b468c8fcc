// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package sync implements the synchronization engine: scope resolution,
// provisioning, change selection, batching, conflict-resolving apply,
// snapshots and the session state machine that drives a full round trip
// between a replica and the hub.
package sync

import (
	"errors"
	"fmt"
)

// Phase names the session step an error surfaced in.
type Phase string

const (
	PhaseBegin           Phase = "begin"
	PhaseScopeResolution Phase = "scope_resolution"
	PhaseProvisioning    Phase = "provisioning"
	PhaseSelection       Phase = "selection"
	PhaseTransfer        Phase = "transfer"
	PhaseApply           Phase = "apply"
	PhaseWatermarkCommit Phase = "watermark_commit"
	PhaseEnd             Phase = "end"
)

// Sentinel error kinds of the engine. Provider-level sentinels
// (missing table/column/key, connection failure) pass through wrapped.
var (
	// ErrMissingScope means the requested scope has never been provisioned
	// on the side that was asked.
	ErrMissingScope = errors.New("scope not provisioned")

	// ErrSetupMismatch means the client's provisioned setup fingerprint no
	// longer matches the hub's. The client must re-run scope resolution.
	ErrSetupMismatch = errors.New("setup fingerprint mismatch")

	// ErrOutOfDate means the hub's retained change history no longer
	// covers the client's watermark; incremental sync cannot proceed.
	ErrOutOfDate = errors.New("client watermark behind retained history")

	// ErrApplyAborted means a row failed to apply and the error-resolution
	// hook (or its absence) declared the failure fatal.
	ErrApplyAborted = errors.New("apply aborted")

	// ErrSessionState means a session operation arrived out of order.
	ErrSessionState = errors.New("invalid session state")

	// ErrSnapshotNotFound means no retained snapshot exists for the scope.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Error is the engine's error envelope. It keeps the phase and the subject
// (scope, table, row key) alongside the wrapped cause so callers can match
// sentinels with errors.Is while logs stay self-describing.
type Error struct {
	Phase Phase
	Scope string
	Table string
	Key   string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("sync %s", e.Phase)
	if e.Scope != "" {
		msg += fmt.Sprintf(" scope %q", e.Scope)
	}
	if e.Table != "" {
		msg += fmt.Sprintf(" table %q", e.Table)
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" key %q", e.Key)
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// wrapPhase annotates err with session context, leaving nil untouched.
func wrapPhase(phase Phase, scope string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Phase: phase, Scope: scope, Err: err}
}

// wrapTable annotates err with row-level context.
func wrapTable(phase Phase, scope, table, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Phase: phase, Scope: scope, Table: table, Key: key, Err: err}
}
