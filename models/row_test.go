// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSyncRow_KeyString verifies key rendering is stable across the integer
// representations produced by JSON decoding and database drivers.
func TestSyncRow_KeyString(t *testing.T) {
	fromDriver := SyncRow{Values: map[string]any{"order_id": int64(7), "line_no": int64(2)}}
	fromJSON := SyncRow{Values: map[string]any{"order_id": float64(7), "line_no": float64(2)}}

	pks := []string{"order_id", "line_no"}

	assert.Equal(t, "7|2", fromDriver.KeyString(pks))
	assert.Equal(t, fromDriver.KeyString(pks), fromJSON.KeyString(pks))
}

// TestSyncRow_Key verifies key extraction follows pk column order.
func TestSyncRow_Key(t *testing.T) {
	row := SyncRow{Values: map[string]any{"id": int64(1), "name": "widget"}}

	assert.Equal(t, []any{int64(1)}, row.Key([]string{"id"}))
}
