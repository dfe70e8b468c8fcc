// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

// EnsureScopeRequest asks the hub to resolve (and provision on first use)
// a scope.
type EnsureScopeRequest struct {
	ScopeName string    `json:"scope_name"`
	ClientID  string    `json:"client_id"`
	Setup     SyncSetup `json:"setup"`
}

// EnsureScopeResponse carries the hub's authoritative scope description.
// Clients provision their local tracking infrastructure from this schema
// snapshot, never from their own introspection.
type EnsureScopeResponse struct {
	Scope ScopeInfo `json:"scope"`

	// SnapshotAvailable tells a new client it can bootstrap from a
	// snapshot instead of full incremental replay.
	SnapshotAvailable bool `json:"snapshot_available"`

	// SnapshotWatermark is the watermark the retained snapshot was taken
	// at; zero when none is available.
	SnapshotWatermark int64 `json:"snapshot_watermark"`
}

// SyncChangesRequest is one client→hub round trip: apply my outgoing batch,
// then select everything I have not seen yet.
//
// Retrying the request with the same ClientWatermark is idempotent: rows the
// hub already applied resolve as zero-effect reapplies, and selection is a
// pure read.
type SyncChangesRequest struct {
	ScopeName string `json:"scope_name"`
	ClientID  string `json:"client_id"`

	// SetupFingerprint guards against a client whose provisioned setup
	// no longer matches the hub's.
	SetupFingerprint string `json:"setup_fingerprint"`

	// ClientWatermark is the last hub watermark the client has fully
	// applied and committed.
	ClientWatermark int64 `json:"client_watermark"`

	// Batch carries the client's outgoing changes; nil when the client
	// has nothing to upload (or the session is download-only).
	Batch *BatchInfo `json:"batch,omitempty"`

	// Reinitialize tells the hub the client rebuilds its replica from this
	// response. The selection must then include rows last applied on the
	// client's own behalf: the replica is wiped before the download lands,
	// so origin-based echo suppression would lose the client's uploads.
	Reinitialize bool `json:"reinitialize,omitempty"`
}

// TableSelectionStat reports how many rows the hub selected per table.
type TableSelectionStat struct {
	Table    string `json:"table"`
	RowCount int    `json:"row_count"`
}

// SyncChangesResponse is the hub's answer to a SyncChangesRequest.
type SyncChangesResponse struct {
	// ServerWatermark is the hub change counter the selection was taken
	// at. The client commits it only after applying Batch completely.
	ServerWatermark int64 `json:"server_watermark"`

	// Batch carries the hub's outgoing changes; nil when the client is
	// already up to date.
	Batch *BatchInfo `json:"batch,omitempty"`

	// Stats is the per-table selection breakdown.
	Stats []TableSelectionStat `json:"stats,omitempty"`

	// TableApplyResults is the per-table breakdown of the upload apply.
	TableApplyResults []TableApplyResult `json:"table_apply_results,omitempty"`

	// AppliedOnServer counts uploaded rows that effectively changed the
	// hub store.
	AppliedOnServer int `json:"applied_on_server"`

	// AlreadyAppliedOnServer counts zero-effect reapplies of uploaded rows.
	AlreadyAppliedOnServer int `json:"already_applied_on_server"`

	// ConflictsResolvedOnServer counts upload conflicts the hub settled.
	ConflictsResolvedOnServer int `json:"conflicts_resolved_on_server"`
}

// ErrorResponse is the transport-level error envelope.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Scope   string `json:"scope,omitempty"`
	Table   string `json:"table,omitempty"`
}
