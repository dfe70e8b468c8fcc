// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

// ScopeInfo is the persisted description of one sync scope on one side
// (server hub or client replica). It pins the schema snapshot and the table
// setup that were active when the scope was provisioned, plus the watermarks
// that bound incremental change selection.
//
// A scope's schema and setup are immutable once provisioned: changing either
// requires an explicit SaveScopeInfo, which bumps Version. Deprovisioning
// removes tracking infrastructure but never deletes the scope record
// implicitly.
type ScopeInfo struct {
	// Name identifies the scope. A store may hold several scopes with
	// disjoint or overlapping table sets.
	Name string `json:"name"`

	// Schema is the ordered snapshot of table definitions introspected at
	// provisioning time. Apply ordering (parent before child) is derived
	// from the foreign-key references recorded here.
	Schema []TableSchema `json:"schema"`

	// Setup is the table/column/direction selection the scope was
	// provisioned with.
	Setup SyncSetup `json:"setup"`

	// Version increases strictly on every structural change
	// (schema or setup re-save).
	Version int64 `json:"version"`

	// LastLocalWatermark is the local change counter up to which local
	// changes have already been selected and acknowledged. A session only
	// selects rows with a tracking version strictly greater than this.
	LastLocalWatermark int64 `json:"last_local_watermark"`

	// LastServerWatermark is the last server watermark this replica has
	// fully applied. Zero means the replica has never synced.
	// Unused on the server side.
	LastServerWatermark int64 `json:"last_server_watermark"`

	// LastCleanupWatermark is the watermark below which tracking metadata
	// has been deleted. A client whose LastServerWatermark is below this
	// value can no longer sync incrementally and is out of date.
	// Only meaningful on the server side.
	LastCleanupWatermark int64 `json:"last_cleanup_watermark"`

	// LastSync records when the scope row was last committed.
	LastSync *time.Time `json:"last_sync,omitempty"`
}

// IsNewClient reports whether this scope has never completed a sync and must
// bootstrap either from a snapshot or from a full incremental download.
func (s ScopeInfo) IsNewClient() bool {
	return s.LastServerWatermark == 0
}

// Table returns the schema entry for name, or false when the scope does not
// cover it.
func (s ScopeInfo) Table(name string) (TableSchema, bool) {
	for _, t := range s.Schema {
		if t.Name == name {
			return t, true
		}
	}
	return TableSchema{}, false
}

// ScopeClientInfo is the server-side record of one replica's sync history
// within a scope. One row exists per (scope, client id); it is updated
// transactionally with the last batch applied on behalf of that client.
type ScopeClientInfo struct {
	ScopeName     string        `json:"scope_name"`
	ClientID      string        `json:"client_id"`
	LastSyncWatermark int64     `json:"last_sync_watermark"`
	LastSync      time.Time     `json:"last_sync"`
	LastSyncDuration time.Duration `json:"last_sync_duration"`
}
