// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

// ColumnSchema is one column of an introspected table.
type ColumnSchema struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	IsNullable   bool   `json:"is_nullable"`
	Ordinal      int    `json:"ordinal"`
}

// ForeignKey records a parent-table reference used to derive apply ordering.
type ForeignKey struct {
	// Column is the referencing column in this table.
	Column string `json:"column"`

	// ParentTable is the referenced table name.
	ParentTable string `json:"parent_table"`

	// ParentColumn is the referenced column name.
	ParentColumn string `json:"parent_column"`
}

// TableSchema is the introspected definition of one synced table, filtered
// down to the column subset the scope's setup selected.
type TableSchema struct {
	Name        string         `json:"name"`
	SchemaName  string         `json:"schema_name,omitempty"`
	Columns     []ColumnSchema `json:"columns"`
	ForeignKeys []ForeignKey   `json:"foreign_keys,omitempty"`

	// Direction is copied from the setup entry so the schema snapshot is
	// self-contained on the wire.
	Direction SyncDirection `json:"direction"`

	// Filter is copied from the setup entry.
	Filter string `json:"filter,omitempty"`
}

// PrimaryKeys returns the ordered primary-key column names.
func (t TableSchema) PrimaryKeys() []string {
	keys := make([]string, 0, 2)
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// ColumnNames returns all column names in ordinal order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// HasColumn reports whether the table defines the named column.
func (t TableSchema) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// DependsOn reports whether t holds a foreign key into parent.
func (t TableSchema) DependsOn(parent string) bool {
	for _, fk := range t.ForeignKeys {
		if fk.ParentTable == parent {
			return true
		}
	}
	return false
}

// OrderByDependency returns tables sorted parents-first: a table referencing
// another via a foreign key always appears after the referenced table.
// Tables without dependency relations keep their relative input order, so the
// result is stable. Cycles are tolerated: members of a cycle stay in input
// order among themselves.
func OrderByDependency(tables []TableSchema) []TableSchema {
	ordered := make([]TableSchema, 0, len(tables))
	placed := make(map[string]bool, len(tables))
	remaining := make([]TableSchema, len(tables))
	copy(remaining, tables)

	for len(remaining) > 0 {
		progress := false
		next := remaining[:0]

		for _, t := range remaining {
			ready := true
			for _, fk := range t.ForeignKeys {
				if fk.ParentTable == t.Name {
					continue // self-reference
				}
				if !placed[fk.ParentTable] && schemaContains(tables, fk.ParentTable) {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, t)
				placed[t.Name] = true
				progress = true
			} else {
				next = append(next, t)
			}
		}

		remaining = next
		if !progress {
			// Cycle: emit the rest in input order.
			ordered = append(ordered, remaining...)
			break
		}
	}

	return ordered
}

// ReverseDependencyOrder returns tables sorted children-first, the order
// deletes must be applied in.
func ReverseDependencyOrder(tables []TableSchema) []TableSchema {
	ordered := OrderByDependency(tables)
	reversed := make([]TableSchema, len(ordered))
	for i, t := range ordered {
		reversed[len(ordered)-1-i] = t
	}
	return reversed
}

func schemaContains(tables []TableSchema, name string) bool {
	for _, t := range tables {
		if t.Name == name {
			return true
		}
	}
	return false
}
