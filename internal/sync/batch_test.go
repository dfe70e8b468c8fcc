// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/models"
)

func makeRows(n int) []models.SyncRow {
	rows := make([]models.SyncRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, models.SyncRow{
			Values:  map[string]any{"id": float64(i), "name": strings.Repeat("x", 8)},
			State:   models.RowModified,
			Version: int64(i + 1),
		})
	}
	return rows
}

// TestBatcher_AppendRows_Chunking verifies rows split into batchSize-bounded
// parts with continuous indexes.
func TestBatcher_AppendRows_Chunking(t *testing.T) {
	b := NewBatcher(Options{BatchSize: 10}, logger.Nop())
	batch := &models.BatchInfo{}

	require.NoError(t, b.AppendRows(context.Background(), batch, "product", makeRows(25)))

	parts := batch.TableParts("product")
	require.Len(t, parts, 3)
	assert.Equal(t, 10, parts[0].RowCount)
	assert.Equal(t, 10, parts[1].RowCount)
	assert.Equal(t, 5, parts[2].RowCount)
	assert.Equal(t, 0, parts[0].Index)
	assert.Equal(t, 2, parts[2].Index)
	assert.Equal(t, 25, batch.RowCount())
}

// TestBatcher_AppendRows_ContinuesIndexes verifies a second append for the
// same table continues the part numbering.
func TestBatcher_AppendRows_ContinuesIndexes(t *testing.T) {
	b := NewBatcher(Options{BatchSize: 10}, logger.Nop())
	batch := &models.BatchInfo{}

	require.NoError(t, b.AppendRows(context.Background(), batch, "product", makeRows(10)))
	require.NoError(t, b.AppendRows(context.Background(), batch, "product", makeRows(10)))

	parts := batch.TableParts("product")
	require.Len(t, parts, 2)
	assert.Equal(t, 1, parts[1].Index)
}

// TestBatcher_RoundTrip verifies parts decode back into the rows that were
// appended.
func TestBatcher_RoundTrip(t *testing.T) {
	b := NewBatcher(Options{BatchSize: 100}, logger.Nop())
	batch := &models.BatchInfo{}
	rows := makeRows(7)

	require.NoError(t, b.AppendRows(context.Background(), batch, "product", rows))

	parts := batch.TableParts("product")
	require.Len(t, parts, 1)

	decoded, err := b.ReadPart(context.Background(), batch, parts[0])
	require.NoError(t, err)
	assert.Equal(t, rows, decoded)
}

// TestBatcher_SpillAndCleanup verifies oversized parts spill to disk, read
// back identically, and disappear on cleanup.
func TestBatcher_SpillAndCleanup(t *testing.T) {
	dir := t.TempDir()
	b := NewBatcher(Options{BatchSize: 100_000, BatchesDirectory: dir}, logger.Nop())
	batch := &models.BatchInfo{}

	// Large enough that the serialized payload crosses the spill threshold.
	big := make([]models.SyncRow, 0, 5000)
	for i := 0; i < 5000; i++ {
		big = append(big, models.SyncRow{
			Values:  map[string]any{"id": float64(i), "blob": strings.Repeat("y", 300)},
			State:   models.RowModified,
			Version: int64(i + 1),
		})
	}

	require.NoError(t, b.AppendRows(context.Background(), batch, "product", big))

	parts := batch.TableParts("product")
	require.Len(t, parts, 1)
	require.NotEmpty(t, parts[0].FileName, "payload should have spilled to disk")
	assert.Empty(t, parts[0].Payload)
	assert.Equal(t, dir, batch.Directory)

	decoded, err := b.ReadPart(context.Background(), batch, parts[0])
	require.NoError(t, err)
	assert.Len(t, decoded, 5000)

	b.Cleanup(batch)
	_, err = os.Stat(filepath.Join(dir, parts[0].FileName))
	assert.True(t, os.IsNotExist(err))
}

// TestBatcher_SerializingHook verifies the serializing interceptor sees each
// outgoing row and its edits reach the wire, while the caller's slice stays
// untouched.
func TestBatcher_SerializingHook(t *testing.T) {
	opts := Options{
		BatchSize: 100,
		Interceptors: Interceptors{
			OnSerializingRow: func(_ context.Context, _ string, row *models.SyncRow) {
				row.Values["stamped"] = true
			},
		},
	}
	b := NewBatcher(opts, logger.Nop())
	batch := &models.BatchInfo{}
	rows := makeRows(3)

	require.NoError(t, b.AppendRows(context.Background(), batch, "product", rows))

	_, callerSeesStamp := rows[0].Values["stamped"]
	assert.False(t, callerSeesStamp, "hook must edit a copy, not the caller's rows")

	decoded, err := b.ReadPart(context.Background(), batch, batch.Parts[0])
	require.NoError(t, err)
	assert.Equal(t, true, decoded[0].Values["stamped"])
}

// TestBatcher_DeserializingHook verifies the deserializing interceptor runs
// on every decoded row.
func TestBatcher_DeserializingHook(t *testing.T) {
	var seen int
	opts := Options{
		BatchSize: 100,
		Interceptors: Interceptors{
			OnDeserializingRow: func(_ context.Context, _ string, _ *models.SyncRow) {
				seen++
			},
		},
	}
	b := NewBatcher(opts, logger.Nop())
	batch := &models.BatchInfo{}

	require.NoError(t, b.AppendRows(context.Background(), batch, "product", makeRows(4)))

	_, err := b.ReadPart(context.Background(), batch, batch.Parts[0])
	require.NoError(t, err)
	assert.Equal(t, 4, seen)
}
