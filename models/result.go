// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

// SyncType selects how a session treats existing local state.
type SyncType string

const (
	// SyncTypeNormal is a plain incremental round trip.
	SyncTypeNormal SyncType = "normal"

	// SyncTypeReinitialize wipes local data and watermarks, then performs
	// a full download. Local pending changes are lost.
	SyncTypeReinitialize SyncType = "reinitialize"

	// SyncTypeReinitializeWithUpload uploads local pending changes first,
	// then wipes and performs a full download.
	SyncTypeReinitializeWithUpload SyncType = "reinitialize_with_upload"
)

// TableResult is the per-table breakdown of one session.
type TableResult struct {
	TableName                string `json:"table_name"`
	ChangesDownloaded        int    `json:"changes_downloaded"`
	ChangesUploaded          int    `json:"changes_uploaded"`
	ChangesAppliedOnClient   int    `json:"changes_applied_on_client"`
	ChangesAppliedOnServer   int    `json:"changes_applied_on_server"`
	ResolvedConflicts        int    `json:"resolved_conflicts"`
	ChangesFailed            int    `json:"changes_failed"`
}

// SyncResult aggregates the outcome of one session. It is written by the
// agent while the session runs and is read-only after completion.
type SyncResult struct {
	// SessionID uniquely identifies the session across both sides.
	SessionID string `json:"session_id"`

	ScopeName string    `json:"scope_name"`
	SyncType  SyncType  `json:"sync_type"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// TotalChangesDownloaded counts rows received from the hub, whether
	// or not they ultimately applied.
	TotalChangesDownloaded int `json:"total_changes_downloaded"`

	// TotalChangesUploadedToServer counts rows sent to the hub.
	TotalChangesUploadedToServer int `json:"total_changes_uploaded_to_server"`

	// TotalChangesAppliedOnClient counts rows that effectively changed the
	// replica. A re-applied identical row does not count.
	TotalChangesAppliedOnClient int `json:"total_changes_applied_on_client"`

	// TotalChangesAppliedOnServer counts uploaded rows the hub applied.
	TotalChangesAppliedOnServer int `json:"total_changes_applied_on_server"`

	// TotalResolvedConflicts counts genuine conflicts settled by policy.
	// Identical-version reapplies are counted in TotalAlreadyApplied
	// instead.
	TotalResolvedConflicts int `json:"total_resolved_conflicts"`

	// TotalAlreadyApplied counts rows whose incoming version matched the
	// local tracking record: zero-effect reapplies, e.g. after a crash
	// between apply and watermark commit.
	TotalAlreadyApplied int `json:"total_already_applied"`

	// SnapshotApplied reports whether the session bootstrapped from a
	// snapshot instead of full incremental replay.
	SnapshotApplied bool `json:"snapshot_applied"`

	// Tables is the per-table breakdown keyed by table name.
	Tables map[string]*TableResult `json:"tables"`
}

// NewSyncResult prepares an empty result for a starting session.
func NewSyncResult(sessionID, scope string, syncType SyncType) *SyncResult {
	return &SyncResult{
		SessionID: sessionID,
		ScopeName: scope,
		SyncType:  syncType,
		StartTime: time.Now(),
		Tables:    make(map[string]*TableResult),
	}
}

// TableResult returns the (lazily created) breakdown entry for table.
func (r *SyncResult) TableResult(table string) *TableResult {
	tr, ok := r.Tables[table]
	if !ok {
		tr = &TableResult{TableName: table}
		r.Tables[table] = tr
	}
	return tr
}

// Duration is the wall-clock time the session took.
func (r *SyncResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
