// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SyncDirection controls which way changes for one table are allowed to flow
// between a replica and the hub.
type SyncDirection string

const (
	// Bidirectional tables upload local changes and download remote ones.
	Bidirectional SyncDirection = "bidirectional"

	// UploadOnly tables push local changes to the hub but never receive
	// hub changes.
	UploadOnly SyncDirection = "upload_only"

	// DownloadOnly tables receive hub changes but local edits are never
	// selected for upload.
	DownloadOnly SyncDirection = "download_only"
)

// AllowsUpload reports whether local changes of a table with this direction
// may be selected for upload.
func (d SyncDirection) AllowsUpload() bool {
	return d == Bidirectional || d == UploadOnly
}

// AllowsDownload reports whether remote changes of a table with this
// direction may be applied locally.
func (d SyncDirection) AllowsDownload() bool {
	return d == Bidirectional || d == DownloadOnly
}

// SetupTable describes one table's participation in a scope.
type SetupTable struct {
	// TableName is the bare table name, without schema qualification.
	TableName string `json:"table_name"`

	// SchemaName is the optional namespace ("public", "dbo", ...). Empty
	// means the backend default.
	SchemaName string `json:"schema_name,omitempty"`

	// Columns restricts the synced column subset. Empty means all columns.
	// Primary-key columns are always included regardless of this list.
	Columns []string `json:"columns,omitempty"`

	// Direction defaults to Bidirectional when empty.
	Direction SyncDirection `json:"direction,omitempty"`

	// Filter is an optional backend-side predicate appended to change
	// selection for this table (e.g. "region = 'emea'"). Passed through
	// verbatim; the engine does not parse it.
	Filter string `json:"filter,omitempty"`
}

// EffectiveDirection resolves the empty default.
func (t SetupTable) EffectiveDirection() SyncDirection {
	if t.Direction == "" {
		return Bidirectional
	}
	return t.Direction
}

// SyncSetup is the ordered set of tables a scope synchronizes.
type SyncSetup struct {
	Tables []SetupTable `json:"tables"`
}

// NewSyncSetup builds a setup from bare table names, all bidirectional.
func NewSyncSetup(tableNames ...string) SyncSetup {
	setup := SyncSetup{Tables: make([]SetupTable, 0, len(tableNames))}
	for _, name := range tableNames {
		setup.Tables = append(setup.Tables, SetupTable{TableName: name})
	}
	return setup
}

// ParseSyncSetup builds a setup from table entries of the form "name" or
// "name:direction", where direction is one of bidirectional, upload_only
// and download_only. A bare name means bidirectional.
func ParseSyncSetup(entries ...string) (SyncSetup, error) {
	setup := SyncSetup{Tables: make([]SetupTable, 0, len(entries))}
	for _, entry := range entries {
		name, rest, hasDirection := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return SyncSetup{}, fmt.Errorf("table entry %q: empty table name", entry)
		}

		table := SetupTable{TableName: name}
		if hasDirection {
			switch direction := SyncDirection(strings.TrimSpace(rest)); direction {
			case Bidirectional, UploadOnly, DownloadOnly:
				table.Direction = direction
			default:
				return SyncSetup{}, fmt.Errorf("table entry %q: unknown sync direction %q", entry, rest)
			}
		}
		setup.Tables = append(setup.Tables, table)
	}
	return setup, nil
}

// Table returns the setup entry for name, or false when absent.
func (s SyncSetup) Table(name string) (SetupTable, bool) {
	for _, t := range s.Tables {
		if t.TableName == name {
			return t, true
		}
	}
	return SetupTable{}, false
}

// HasTables reports whether the setup names at least one table.
func (s SyncSetup) HasTables() bool {
	return len(s.Tables) > 0
}

// Fingerprint returns a stable hash of the setup. Both sides of a session
// compare fingerprints to detect a client whose provisioned setup diverged
// from the hub's.
func (s SyncSetup) Fingerprint() string {
	tables := make([]SetupTable, len(s.Tables))
	copy(tables, s.Tables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].TableName < tables[j].TableName })

	payload, err := json.Marshal(tables)
	if err != nil {
		// A SetupTable only contains strings and slices of strings;
		// marshalling cannot fail at runtime.
		return ""
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
