// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"errors"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

// Applier writes an incoming batch into one store with conflict resolution.
//
// Conflict detection is watermark-based: a local tracking version above the
// sender's last-seen watermark means both sides changed the row since their
// last common point. An incoming version equal to the local tracking version
// is not a conflict but a zero-effect reapply, which is what makes retrying
// a half-finished session safe.
type Applier struct {
	provider provider.Provider
	batcher  *Batcher
	options  Options
	logger   *logger.Logger

	// incomingFromServer orients the ServerWins/ClientWins policy: true
	// when this applier runs on a client applying hub changes.
	incomingFromServer bool
}

// NewApplier builds an applier over one provider. fromServer tells it which
// side the incoming rows originate from.
func NewApplier(p provider.Provider, batcher *Batcher, opts Options, fromServer bool, log *logger.Logger) *Applier {
	return &Applier{
		provider:           p,
		batcher:            batcher,
		options:            opts,
		logger:             log,
		incomingFromServer: fromServer,
	}
}

// Apply writes batch into the store. since is the sender's last-seen
// watermark of this store; origin identifies the sending peer and is
// stamped on every applied tracking record so the next selection does not
// echo these rows back.
//
// Upserts run in the batch's table order (parents first); deletes are
// deferred and run child-first so foreign keys hold without deferrable
// constraints.
func (a *Applier) Apply(ctx context.Context, scope string, schema []models.TableSchema, batch *models.BatchInfo, since int64, origin string) (*models.ApplyResult, error) {
	result := &models.ApplyResult{}
	if batch == nil || !batch.HasRows() {
		return result, nil
	}

	a.options.Interceptors.databaseApplying(ctx, scope, batch)

	if a.options.DisableConstraintsOnApplyChanges {
		if err := a.provider.DisableConstraints(ctx); err != nil {
			return nil, wrapPhase(PhaseApply, scope, err)
		}
		defer func() {
			if err := a.provider.EnableConstraints(context.WithoutCancel(ctx)); err != nil {
				a.logger.Error().Err(err).
					Str("func", "*Applier.Apply").
					Msg("failed to re-enable constraints")
			}
		}()
	}

	byName := make(map[string]models.TableSchema, len(schema))
	for _, table := range schema {
		byName[table.Name] = table
	}

	// Deletes deferred per table, replayed child-first after all upserts.
	deferred := make(map[string][]models.SyncRow, len(schema))

	for _, tableName := range batch.Tables() {
		table, ok := byName[tableName]
		if !ok {
			return nil, wrapTable(PhaseApply, scope, tableName, "", provider.ErrMissingTable)
		}

		parts := batch.TableParts(tableName)
		rowCount := 0
		for _, part := range parts {
			rowCount += part.RowCount
		}
		a.options.Interceptors.tableApplying(ctx, table, rowCount)

		for _, part := range parts {
			rows, err := a.batcher.ReadPart(ctx, batch, part)
			if err != nil {
				return nil, wrapTable(PhaseApply, scope, tableName, "", err)
			}

			applied := make([]models.SyncRow, 0, len(rows))
			for _, row := range rows {
				if row.State == models.RowDeleted {
					deferred[tableName] = append(deferred[tableName], row)
					continue
				}
				ok, err := a.applyOne(ctx, scope, table, row, since, origin, result.Table(tableName))
				if err != nil {
					return nil, err
				}
				if ok {
					applied = append(applied, row)
				}
			}
			a.options.Interceptors.rowsApplied(ctx, table, applied)
		}
	}

	for _, table := range models.ReverseDependencyOrder(schema) {
		rows := deferred[table.Name]
		if len(rows) == 0 {
			continue
		}
		applied := make([]models.SyncRow, 0, len(rows))
		for _, row := range rows {
			ok, err := a.applyOne(ctx, scope, table, row, since, origin, result.Table(table.Name))
			if err != nil {
				return nil, err
			}
			if ok {
				applied = append(applied, row)
			}
		}
		a.options.Interceptors.rowsApplied(ctx, table, applied)
	}

	for _, tableName := range batch.Tables() {
		if table, ok := byName[tableName]; ok {
			a.options.Interceptors.tableApplied(ctx, table, *result.Table(tableName))
		}
	}
	a.options.Interceptors.databaseApplied(ctx, scope, result)

	return result, nil
}

// applyOne settles one incoming row against the local tracking record and
// writes it when it wins. The bool result reports whether the store changed.
func (a *Applier) applyOne(ctx context.Context, scope string, table models.TableSchema, row models.SyncRow, since int64, origin string, tr *models.TableApplyResult) (bool, error) {
	var found bool
	tracking, err := withRetry(ctx, a.provider.Classifier(), func() (provider.TrackingRow, error) {
		t, ok, trackErr := a.provider.GetTrackingRow(ctx, table, row)
		if trackErr != nil {
			return provider.TrackingRow{}, trackErr
		}
		found = ok
		return t, nil
	})
	if err != nil {
		return false, wrapTable(PhaseApply, scope, table.Name, row.KeyString(table.PrimaryKeys()), err)
	}

	switch {
	case found && tracking.Version == row.Version:
		// The exact change is already here: a retry after a crash between
		// apply and watermark commit, or both sides received it from the
		// same origin.
		tr.AlreadyApplied++
		return false, nil

	case found && tracking.Version > since && tracking.OriginID != origin:
		return a.resolveConflict(ctx, scope, table, row, tracking, origin, tr)
	}

	if err = a.writeRow(ctx, scope, table, row, origin, tr); err != nil {
		return false, err
	}
	if row.State != models.RowDeleted || found {
		tr.Applied++
	}
	return true, nil
}

// resolveConflict runs the conflict hook (falling back to the configured
// policy) and applies its decision.
func (a *Applier) resolveConflict(ctx context.Context, scope string, table models.TableSchema, row models.SyncRow, tracking provider.TrackingRow, origin string, tr *models.TableApplyResult) (bool, error) {
	record := &models.ConflictRecord{
		Table:          table.Name,
		Key:            row.KeyString(table.PrimaryKeys()),
		RemoteRow:      row,
		LocalVersion:   tracking.Version,
		LocalTombstone: tracking.Tombstone,
	}
	resolution := a.options.Interceptors.conflict(ctx, record, a.options.conflictPolicy())
	record.Resolution = resolution

	incomingWins := false
	write := row
	writeOrigin := origin
	switch resolution {
	case models.ServerWins:
		incomingWins = a.incomingFromServer
	case models.ClientWins:
		incomingWins = !a.incomingFromServer
	case models.MergeRow:
		if record.MergedRow == nil {
			return false, wrapTable(PhaseApply, scope, table.Name, record.Key,
				errors.New("merge resolution without merged row"))
		}
		write = *record.MergedRow
		// The merged row matches neither side's content, so it must
		// strictly supersede both versions and it must not carry the
		// sender's origin stamp, or the sender would never receive it back.
		merged := tracking.Version
		if row.Version > merged {
			merged = row.Version
		}
		write.Version = merged + 1
		writeOrigin = ""
		incomingWins = true
	}

	tr.ResolvedConflicts++
	a.logger.Debug().
		Str("func", "*Applier.resolveConflict").
		Str("table", table.Name).
		Str("key", record.Key).
		Str("resolution", string(resolution)).
		Bool("incoming_wins", incomingWins).
		Msg("conflict resolved")

	if !incomingWins {
		// The local pending change stays and uploads on its own schedule.
		tr.Skipped++
		return false, nil
	}

	if err := a.writeRow(ctx, scope, table, write, writeOrigin, tr); err != nil {
		return false, err
	}
	tr.Applied++
	return true, nil
}

// writeRow pushes one row through the provider with transient-fault retry
// and constraint-failure routing through the error hook. The hook's
// Resolved and RetryOneMoreTime answers grant exactly one extra attempt.
func (a *Applier) writeRow(ctx context.Context, scope string, table models.TableSchema, row models.SyncRow, origin string, tr *models.TableApplyResult) error {
	attempt := func() error {
		return retryExec(ctx, a.provider.Classifier(), func() error {
			return a.provider.ApplyRow(ctx, table, row, origin)
		})
	}

	err := attempt()
	if err == nil {
		return nil
	}

	key := row.KeyString(table.PrimaryKeys())
	resolution := a.options.Interceptors.applyError(ctx, table, row, err)

	switch resolution {
	case models.ErrorResolutionContinueOnError:
		a.logger.Warn().Err(err).
			Str("func", "*Applier.writeRow").
			Str("table", table.Name).
			Str("key", key).
			Msg("row skipped after apply error")
		tr.Skipped++
		return nil

	case models.ErrorResolutionResolved:
		if err = attempt(); err != nil {
			return wrapTable(PhaseApply, scope, table.Name, key, errors.Join(ErrApplyAborted, err))
		}
		return nil

	case models.ErrorResolutionRetryOneMoreTimeAndContinueOnError:
		if err = attempt(); err != nil {
			a.logger.Warn().Err(err).
				Str("func", "*Applier.writeRow").
				Str("table", table.Name).
				Str("key", key).
				Msg("row skipped after failed retry")
			tr.Skipped++
		}
		return nil
	}

	return wrapTable(PhaseApply, scope, table.Name, key, errors.Join(ErrApplyAborted, err))
}
