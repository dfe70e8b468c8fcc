// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"fmt"
	"sort"
	"strings"
)

// RowState tags what kind of change a SyncRow carries.
type RowState string

const (
	// RowModified covers both inserts and updates; the receiving side
	// resolves which one applies via an upsert.
	RowModified RowState = "modified"

	// RowDeleted is a tombstone: only the primary-key values are
	// meaningful.
	RowDeleted RowState = "deleted"
)

// SyncRow is one row-level change selected from tracking metadata.
// It is immutable once produced by selection; ownership moves from the
// selector to the batcher and finally to the apply engine.
type SyncRow struct {
	// Values holds the synced column values keyed by column name. For a
	// tombstone only the primary-key columns are present.
	Values map[string]any `json:"values"`

	// State is the change kind.
	State RowState `json:"state"`

	// Version is the tracking version the change was recorded at on its
	// origin side. Versions form one logical clock across both sides: the
	// apply engine advances the receiving side's clock past every version
	// it applies.
	Version int64 `json:"version"`
}

// Key extracts the primary-key values of the row in pkColumns order.
func (r SyncRow) Key(pkColumns []string) []any {
	key := make([]any, 0, len(pkColumns))
	for _, col := range pkColumns {
		key = append(key, r.Values[col])
	}
	return key
}

// KeyString renders the primary-key values as a stable string, usable as a
// map key and in error messages.
func (r SyncRow) KeyString(pkColumns []string) string {
	parts := make([]string, 0, len(pkColumns))
	for _, col := range pkColumns {
		parts = append(parts, fmt.Sprintf("%v", normalizeKeyValue(r.Values[col])))
	}
	return strings.Join(parts, "|")
}

// ColumnNames returns the row's column names sorted alphabetically.
// Mostly useful in tests and diagnostics.
func (r SyncRow) ColumnNames() []string {
	names := make([]string, 0, len(r.Values))
	for name := range r.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalizeKeyValue folds the integer widths JSON and database drivers
// disagree on into one representation, so the same key compares equal no
// matter which layer produced the value.
func normalizeKeyValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		// encoding/json decodes every number as float64.
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	default:
		return v
	}
}
