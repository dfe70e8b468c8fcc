// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

// provisionedStore provisions a fresh store and returns its session-pinned
// provider plus the resolved schema.
func provisionedStore(t *testing.T) (provider.Provider, []models.TableSchema) {
	t.Helper()
	ctx := context.Background()
	store := newStore(t)

	p, err := store.Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() }) //nolint:errcheck

	schema, err := NewProvisioner(p, logger.Nop()).Provision(ctx, retailSetup(), ProvisionAll)
	require.NoError(t, err)
	return p, schema
}

func batchOf(t *testing.T, b *Batcher, table string, rows ...models.SyncRow) *models.BatchInfo {
	t.Helper()
	batch := &models.BatchInfo{Watermark: 1}
	require.NoError(t, b.AppendRows(context.Background(), batch, table, rows))
	return batch
}

// TestApplier_ConstraintFailureIsFatalByDefault feeds a row that violates a
// foreign key; without an error hook the apply must abort.
func TestApplier_ConstraintFailureIsFatalByDefault(t *testing.T) {
	p, schema := provisionedStore(t)
	batcher := NewBatcher(Options{}, logger.Nop())

	orphan := models.SyncRow{
		Values:  map[string]any{"id": float64(1), "category_id": float64(999), "name": "ghost", "price": float64(1)},
		State:   models.RowModified,
		Version: 5,
	}
	batch := batchOf(t, batcher, "product", orphan)

	applier := NewApplier(p, batcher, Options{}, true, logger.Nop())
	_, err := applier.Apply(context.Background(), "retail", schema, batch, 0, ServerOriginID)

	assert.ErrorIs(t, err, ErrApplyAborted)

	var syncErr *Error
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, PhaseApply, syncErr.Phase)
	assert.Equal(t, "product", syncErr.Table)
}

// TestApplier_ContinueOnErrorSkipsRow lets the error hook skip the failing
// row; the rest of the batch still applies.
func TestApplier_ContinueOnErrorSkipsRow(t *testing.T) {
	p, schema := provisionedStore(t)
	batcher := NewBatcher(Options{}, logger.Nop())

	opts := Options{
		Interceptors: Interceptors{
			OnApplyChangesErrorOccured: func(_ context.Context, _ models.TableSchema, _ models.SyncRow, _ error) models.ErrorResolution {
				return models.ErrorResolutionContinueOnError
			},
		},
	}

	batch := &models.BatchInfo{Watermark: 10}
	require.NoError(t, batcher.AppendRows(context.Background(), batch, "product_category", []models.SyncRow{
		{Values: map[string]any{"id": float64(1), "name": "tools"}, State: models.RowModified, Version: 3},
	}))
	require.NoError(t, batcher.AppendRows(context.Background(), batch, "product", []models.SyncRow{
		{Values: map[string]any{"id": float64(1), "category_id": float64(999), "name": "ghost", "price": float64(1)}, State: models.RowModified, Version: 4},
		{Values: map[string]any{"id": float64(2), "category_id": float64(1), "name": "hammer", "price": float64(10)}, State: models.RowModified, Version: 5},
	}))

	applier := NewApplier(p, batcher, opts, true, logger.Nop())
	result, err := applier.Apply(context.Background(), "retail", schema, batch, 0, ServerOriginID)
	require.NoError(t, err)

	productResult := result.Table("product")
	assert.Equal(t, 1, productResult.Applied)
	assert.Equal(t, 1, productResult.Skipped)
	assert.Equal(t, 1, result.Table("product_category").Applied)
}

// TestApplier_ResolvedRetriesOnce checks the Resolved answer: the hook fixes
// the store out of band and the row succeeds on its second attempt.
func TestApplier_ResolvedRetriesOnce(t *testing.T) {
	p, schema := provisionedStore(t)
	batcher := NewBatcher(Options{}, logger.Nop())

	var hookRuns int
	opts := Options{
		Interceptors: Interceptors{
			OnApplyChangesErrorOccured: func(ctx context.Context, _ models.TableSchema, _ models.SyncRow, _ error) models.ErrorResolution {
				hookRuns++
				// Create the missing parent so the retry succeeds.
				category, _ := models.ScopeInfo{Schema: schema}.Table("product_category")
				applyErr := p.ApplyRow(ctx, category, models.SyncRow{
					Values:  map[string]any{"id": int64(999), "name": "late-parent"},
					State:   models.RowModified,
					Version: 9,
				}, ServerOriginID)
				if applyErr != nil {
					return models.ErrorResolutionFatal
				}
				return models.ErrorResolutionResolved
			},
		},
	}

	orphan := models.SyncRow{
		Values:  map[string]any{"id": float64(1), "category_id": float64(999), "name": "ghost", "price": float64(1)},
		State:   models.RowModified,
		Version: 5,
	}
	batch := batchOf(t, batcher, "product", orphan)

	applier := NewApplier(p, batcher, opts, true, logger.Nop())
	result, err := applier.Apply(context.Background(), "retail", schema, batch, 0, ServerOriginID)
	require.NoError(t, err)

	assert.Equal(t, 1, hookRuns)
	assert.Equal(t, 1, result.Table("product").Applied)
}

// TestApplier_UnknownTableRejected checks a batch naming a table outside the
// schema fails fast.
func TestApplier_UnknownTableRejected(t *testing.T) {
	p, schema := provisionedStore(t)
	batcher := NewBatcher(Options{}, logger.Nop())

	batch := batchOf(t, batcher, "warehouse", models.SyncRow{
		Values: map[string]any{"id": float64(1)}, State: models.RowModified, Version: 2,
	})

	applier := NewApplier(p, batcher, Options{}, true, logger.Nop())
	_, err := applier.Apply(context.Background(), "retail", schema, batch, 0, ServerOriginID)
	assert.ErrorIs(t, err, provider.ErrMissingTable)
}

// TestApplier_EmptyBatchIsNoop checks nil and empty batches short-circuit.
func TestApplier_EmptyBatchIsNoop(t *testing.T) {
	p, schema := provisionedStore(t)
	batcher := NewBatcher(Options{}, logger.Nop())
	applier := NewApplier(p, batcher, Options{}, true, logger.Nop())

	result, err := applier.Apply(context.Background(), "retail", schema, nil, 0, ServerOriginID)
	require.NoError(t, err)
	assert.Zero(t, result.TotalApplied())

	result, err = applier.Apply(context.Background(), "retail", schema, &models.BatchInfo{}, 0, ServerOriginID)
	require.NoError(t, err)
	assert.Zero(t, result.TotalApplied())
}
