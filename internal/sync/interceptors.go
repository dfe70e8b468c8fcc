// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"

	"github.com/MKhiriev/go-row-sync/models"
)

// Interceptors are synchronous progress and decision callbacks invoked by
// the engine on the goroutine running the session. A nil field is skipped.
// Hooks must not call back into the engine.
type Interceptors struct {
	// OnDatabaseChangesApplying fires once before a batch apply starts.
	OnDatabaseChangesApplying func(ctx context.Context, scope string, batch *models.BatchInfo)

	// OnDatabaseChangesApplied fires once after a batch apply finished.
	OnDatabaseChangesApplied func(ctx context.Context, scope string, result *models.ApplyResult)

	// OnTableChangesApplying fires before each table's parts are applied.
	OnTableChangesApplying func(ctx context.Context, table models.TableSchema, rowCount int)

	// OnTableChangesApplied fires after each table's parts were applied.
	OnTableChangesApplied func(ctx context.Context, table models.TableSchema, result models.TableApplyResult)

	// OnRowsChangesApplied fires per applied part with the rows that
	// effectively changed the store.
	OnRowsChangesApplied func(ctx context.Context, table models.TableSchema, rows []models.SyncRow)

	// OnConflict decides a conflicting row. Returning an empty resolution
	// keeps the configured policy. A MergeRow resolution must set
	// record.MergedRow.
	OnConflict func(ctx context.Context, record *models.ConflictRecord) models.ConflictResolution

	// OnApplyChangesErrorOccured decides what to do with a row that failed
	// to apply. Without a hook every failure is fatal.
	OnApplyChangesErrorOccured func(ctx context.Context, table models.TableSchema, row models.SyncRow, applyErr error) models.ErrorResolution

	// OnOutdated decides how to continue when the hub's retained history
	// no longer covers the client watermark. Without a hook the session
	// aborts with ErrOutOfDate.
	OnOutdated func(ctx context.Context, scope string, clientWatermark, cleanupWatermark int64) models.OutdatedAction

	// OnSerializingRow may rewrite a row before it is encoded into a
	// batch part. Returning nil keeps the row unchanged.
	OnSerializingRow func(ctx context.Context, table string, row *models.SyncRow)

	// OnDeserializingRow may rewrite a row right after decoding.
	OnDeserializingRow func(ctx context.Context, table string, row *models.SyncRow)
}

func (i Interceptors) databaseApplying(ctx context.Context, scope string, batch *models.BatchInfo) {
	if i.OnDatabaseChangesApplying != nil {
		i.OnDatabaseChangesApplying(ctx, scope, batch)
	}
}

func (i Interceptors) databaseApplied(ctx context.Context, scope string, result *models.ApplyResult) {
	if i.OnDatabaseChangesApplied != nil {
		i.OnDatabaseChangesApplied(ctx, scope, result)
	}
}

func (i Interceptors) tableApplying(ctx context.Context, table models.TableSchema, rowCount int) {
	if i.OnTableChangesApplying != nil {
		i.OnTableChangesApplying(ctx, table, rowCount)
	}
}

func (i Interceptors) tableApplied(ctx context.Context, table models.TableSchema, result models.TableApplyResult) {
	if i.OnTableChangesApplied != nil {
		i.OnTableChangesApplied(ctx, table, result)
	}
}

func (i Interceptors) rowsApplied(ctx context.Context, table models.TableSchema, rows []models.SyncRow) {
	if i.OnRowsChangesApplied != nil && len(rows) > 0 {
		i.OnRowsChangesApplied(ctx, table, rows)
	}
}

func (i Interceptors) conflict(ctx context.Context, record *models.ConflictRecord, policy models.ConflictResolution) models.ConflictResolution {
	if i.OnConflict != nil {
		if resolution := i.OnConflict(ctx, record); resolution != "" {
			return resolution
		}
	}
	return policy
}

func (i Interceptors) applyError(ctx context.Context, table models.TableSchema, row models.SyncRow, applyErr error) models.ErrorResolution {
	if i.OnApplyChangesErrorOccured != nil {
		if resolution := i.OnApplyChangesErrorOccured(ctx, table, row, applyErr); resolution != "" {
			return resolution
		}
	}
	return models.ErrorResolutionFatal
}

func (i Interceptors) outdated(ctx context.Context, scope string, clientWatermark, cleanupWatermark int64) models.OutdatedAction {
	if i.OnOutdated != nil {
		if action := i.OnOutdated(ctx, scope, clientWatermark, cleanupWatermark); action != "" {
			return action
		}
	}
	return models.OutdatedAbort
}

func (i Interceptors) serializingRow(ctx context.Context, table string, row *models.SyncRow) {
	if i.OnSerializingRow != nil {
		i.OnSerializingRow(ctx, table, row)
	}
}

func (i Interceptors) deserializingRow(ctx context.Context, table string, row *models.SyncRow) {
	if i.OnDeserializingRow != nil {
		i.OnDeserializingRow(ctx, table, row)
	}
}
