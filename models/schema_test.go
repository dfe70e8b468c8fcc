// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func tableWithFK(name, parent string) TableSchema {
	t := TableSchema{
		Name: name,
		Columns: []ColumnSchema{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true, Ordinal: 0},
			{Name: "title", DataType: "text", Ordinal: 1},
		},
	}
	if parent != "" {
		t.ForeignKeys = []ForeignKey{{Column: parent + "_id", ParentTable: parent, ParentColumn: "id"}}
	}
	return t
}

// TestOrderByDependency_ParentsFirst verifies that a child table always
// follows every table it references.
func TestOrderByDependency_ParentsFirst(t *testing.T) {
	tables := []TableSchema{
		tableWithFK("order_item", "order"),
		tableWithFK("order", "customer"),
		tableWithFK("customer", ""),
	}

	ordered := OrderByDependency(tables)

	names := make([]string, 0, len(ordered))
	for _, tbl := range ordered {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"customer", "order", "order_item"}, names)
}

// TestOrderByDependency_StableForUnrelated verifies that tables without
// dependency relations keep their input order.
func TestOrderByDependency_StableForUnrelated(t *testing.T) {
	tables := []TableSchema{
		tableWithFK("beta", ""),
		tableWithFK("alpha", ""),
		tableWithFK("gamma", ""),
	}

	ordered := OrderByDependency(tables)

	assert.Equal(t, "beta", ordered[0].Name)
	assert.Equal(t, "alpha", ordered[1].Name)
	assert.Equal(t, "gamma", ordered[2].Name)
}

// TestOrderByDependency_IgnoresExternalParents verifies that a foreign key
// into a table outside the scope does not block placement.
func TestOrderByDependency_IgnoresExternalParents(t *testing.T) {
	tables := []TableSchema{tableWithFK("order", "customer")}

	ordered := OrderByDependency(tables)

	assert.Len(t, ordered, 1)
	assert.Equal(t, "order", ordered[0].Name)
}

// TestOrderByDependency_SelfReference verifies that a self-referencing table
// (e.g. a category tree) does not deadlock the ordering.
func TestOrderByDependency_SelfReference(t *testing.T) {
	tables := []TableSchema{tableWithFK("category", "category")}

	ordered := OrderByDependency(tables)

	assert.Len(t, ordered, 1)
}

// TestOrderByDependency_CycleTolerated verifies that mutually referencing
// tables are emitted rather than dropped.
func TestOrderByDependency_CycleTolerated(t *testing.T) {
	tables := []TableSchema{
		tableWithFK("a", "b"),
		tableWithFK("b", "a"),
	}

	ordered := OrderByDependency(tables)

	assert.Len(t, ordered, 2)
}

// TestReverseDependencyOrder verifies children-first ordering for deletes.
func TestReverseDependencyOrder(t *testing.T) {
	tables := []TableSchema{
		tableWithFK("customer", ""),
		tableWithFK("order", "customer"),
	}

	reversed := ReverseDependencyOrder(tables)

	assert.Equal(t, "order", reversed[0].Name)
	assert.Equal(t, "customer", reversed[1].Name)
}

// TestTableSchema_PrimaryKeys verifies PK extraction keeps column order.
func TestTableSchema_PrimaryKeys(t *testing.T) {
	table := TableSchema{
		Name: "order_item",
		Columns: []ColumnSchema{
			{Name: "order_id", IsPrimaryKey: true, Ordinal: 0},
			{Name: "line_no", IsPrimaryKey: true, Ordinal: 1},
			{Name: "qty", Ordinal: 2},
		},
	}

	assert.Equal(t, []string{"order_id", "line_no"}, table.PrimaryKeys())
	assert.True(t, table.HasColumn("qty"))
	assert.False(t, table.HasColumn("price"))
}
