// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

// BatchPartInfo is one bounded chunk of changes for a single table.
//
// The row payload is kept in serialized form (whatever the configured
// serializer produced) either inline in Payload or spilled to FileName under
// the batch directory. Exactly one of the two is set.
type BatchPartInfo struct {
	// Table is the table every row in this part belongs to.
	Table string `json:"table"`

	// Index is the zero-based position of the part within its table's
	// sequence of parts.
	Index int `json:"index"`

	// RowCount is the number of rows encoded in the payload.
	RowCount int `json:"row_count"`

	// Payload is the serialized row set when the part is held in memory
	// or travels inline on the wire.
	Payload []byte `json:"payload,omitempty"`

	// FileName is the file the payload was spilled to, relative to
	// BatchInfo.Directory. Empty for in-memory parts.
	FileName string `json:"file_name,omitempty"`
}

// BatchInfo is an ordered sequence of batch parts produced by one selection.
// Parts are consumed exactly once, in order, by the apply engine.
type BatchInfo struct {
	// Parts holds the batch parts in apply order: table order follows the
	// selection's dependency order, part index order within a table.
	Parts []BatchPartInfo `json:"parts"`

	// Directory is the transient (or, for snapshots, durable) directory
	// spilled part files live in. Empty when every part is in memory.
	Directory string `json:"-"`

	// Watermark is the origin-side change counter the selection was taken
	// at. Changes strictly after it belong to the next session.
	Watermark int64 `json:"watermark"`
}

// RowCount sums the rows across all parts.
func (b *BatchInfo) RowCount() int {
	if b == nil {
		return 0
	}
	total := 0
	for _, p := range b.Parts {
		total += p.RowCount
	}
	return total
}

// HasRows reports whether the batch carries any change at all.
func (b *BatchInfo) HasRows() bool {
	return b.RowCount() > 0
}

// TableParts returns the parts belonging to table, in index order.
func (b *BatchInfo) TableParts(table string) []BatchPartInfo {
	if b == nil {
		return nil
	}
	parts := make([]BatchPartInfo, 0, 2)
	for _, p := range b.Parts {
		if p.Table == table {
			parts = append(parts, p)
		}
	}
	return parts
}

// Tables returns the distinct table names in first-appearance order.
func (b *BatchInfo) Tables() []string {
	if b == nil {
		return nil
	}
	seen := make(map[string]bool, 4)
	tables := make([]string, 0, 4)
	for _, p := range b.Parts {
		if !seen[p.Table] {
			seen[p.Table] = true
			tables = append(tables, p.Table)
		}
	}
	return tables
}

// SnapshotInfo describes a durable point-in-time full export of a scope.
// Exactly one snapshot is retained per scope; creating a new one supersedes
// the prior.
type SnapshotInfo struct {
	ScopeName string    `json:"scope_name"`
	Watermark int64     `json:"watermark"`
	Batch     BatchInfo `json:"batch"`
}
