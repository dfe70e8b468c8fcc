// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

// SelectChangedRows implements [provider.Provider]. It joins the tracking
// table against the base table so live rows carry their current column
// values and tombstones carry primary-key values only. Rows whose last
// change was applied on behalf of excludeOrigin are filtered out, which is
// what keeps a peer from receiving its own uploads back; an empty
// excludeOrigin disables the filter so full rebuilds see every row.
func (p *liteProvider) SelectChangedRows(ctx context.Context, table models.TableSchema, since int64, excludeOrigin string) ([]models.SyncRow, error) {
	log := logger.FromContext(ctx)

	pks := table.PrimaryKeys()
	tracking := quoteIdent(trackingTableName(table.Name))

	selectCols := []string{"t.row_version", "t.tombstone"}
	for _, pk := range pks {
		selectCols = append(selectCols, "t."+quoteIdent(pk))
	}
	nonPK := make([]string, 0, len(table.Columns))
	for _, col := range table.Columns {
		if !col.IsPrimaryKey {
			nonPK = append(nonPK, col.Name)
			selectCols = append(selectCols, "b."+quoteIdent(col.Name))
		}
	}

	joinConds := make([]string, 0, len(pks))
	for _, pk := range pks {
		joinConds = append(joinConds, "t."+quoteIdent(pk)+" = b."+quoteIdent(pk))
	}

	builder := sq.Select(selectCols...).
		From(tracking + " t").
		LeftJoin(qualifiedName(table) + " b ON " + strings.Join(joinConds, " AND ")).
		Where(sq.Gt{"t.row_version": since}).
		OrderBy("t.row_version").
		PlaceholderFormat(sq.Question)

	if excludeOrigin != "" {
		builder = builder.Where(sq.Or{sq.Eq{"t.origin_id": nil}, sq.NotEq{"t.origin_id": excludeOrigin}})
	}

	if table.Filter != "" {
		// Tombstones have no base row; a base-column filter must not
		// hide them.
		builder = builder.Where("(t.tombstone = 1 OR (" + table.Filter + "))")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build change selection: %w", err)
	}

	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "*liteProvider.SelectChangedRows").
			Str("table", table.Name).
			Int64("since", since).
			Msg("failed to execute change selection")
		return nil, p.wrap(err)
	}
	defer rows.Close()

	changes := make([]models.SyncRow, 0, 64)
	for rows.Next() {
		row, scanErr := scanChangedRow(rows, pks, nonPK)
		if scanErr != nil {
			return nil, scanErr
		}
		changes = append(changes, row)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrScanningRows, err)
	}

	return changes, nil
}

func scanChangedRow(rows *sql.Rows, pks, nonPK []string) (models.SyncRow, error) {
	dest := make([]any, 2+len(pks)+len(nonPK))
	var version int64
	var tombstone bool
	dest[0] = &version
	dest[1] = &tombstone
	for i := 2; i < len(dest); i++ {
		dest[i] = new(any)
	}

	if err := rows.Scan(dest...); err != nil {
		return models.SyncRow{}, fmt.Errorf("%w: %w", provider.ErrScanningRow, err)
	}

	values := make(map[string]any, len(pks)+len(nonPK))
	for i, pk := range pks {
		values[pk] = provider.NormalizeValue(*dest[2+i].(*any))
	}

	state := models.RowModified
	if tombstone {
		state = models.RowDeleted
	} else {
		for i, col := range nonPK {
			values[col] = provider.NormalizeValue(*dest[2+len(pks)+i].(*any))
		}
	}

	return models.SyncRow{Values: values, State: state, Version: version}, nil
}

// SelectAllRows implements [provider.Provider]. Used by snapshot creation;
// every returned row carries its current tracking version so a bootstrap
// stays comparable with later incremental changes.
func (p *liteProvider) SelectAllRows(ctx context.Context, table models.TableSchema) ([]models.SyncRow, error) {
	pks := table.PrimaryKeys()
	tracking := quoteIdent(trackingTableName(table.Name))

	selectCols := make([]string, 0, len(table.Columns)+1)
	selectCols = append(selectCols, "COALESCE(t.row_version, 0)")
	for _, col := range table.Columns {
		selectCols = append(selectCols, "b."+quoteIdent(col.Name))
	}

	joinConds := make([]string, 0, len(pks))
	for _, pk := range pks {
		joinConds = append(joinConds, "t."+quoteIdent(pk)+" = b."+quoteIdent(pk))
	}

	builder := sq.Select(selectCols...).
		From(qualifiedName(table) + " b").
		LeftJoin(tracking + " t ON " + strings.Join(joinConds, " AND ")).
		PlaceholderFormat(sq.Question)
	if table.Filter != "" {
		builder = builder.Where("(" + table.Filter + ")")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snapshot selection: %w", err)
	}

	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	cols := table.ColumnNames()
	all := make([]models.SyncRow, 0, 128)
	for rows.Next() {
		dest := make([]any, len(cols)+1)
		var version int64
		dest[0] = &version
		for i := 1; i < len(dest); i++ {
			dest[i] = new(any)
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: %w", provider.ErrScanningRow, err)
		}

		values := make(map[string]any, len(cols))
		for i, col := range cols {
			values[col] = provider.NormalizeValue(*dest[1+i].(*any))
		}
		all = append(all, models.SyncRow{Values: values, State: models.RowModified, Version: version})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrScanningRows, err)
	}

	return all, nil
}

// GetTrackingRow implements [provider.Provider].
func (p *liteProvider) GetTrackingRow(ctx context.Context, table models.TableSchema, row models.SyncRow) (provider.TrackingRow, bool, error) {
	pks := table.PrimaryKeys()

	builder := sq.Select("row_version", "tombstone", "origin_id").
		From(quoteIdent(trackingTableName(table.Name))).
		PlaceholderFormat(sq.Question)
	for _, pk := range pks {
		builder = builder.Where(sq.Eq{quoteIdent(pk): coerceArg(table, pk, row.Values[pk])})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return provider.TrackingRow{}, false, fmt.Errorf("build tracking lookup: %w", err)
	}

	var tracking provider.TrackingRow
	var origin sql.NullString
	err = p.conn.QueryRowContext(ctx, query, args...).Scan(&tracking.Version, &tracking.Tombstone, &origin)
	if err == sql.ErrNoRows {
		return provider.TrackingRow{}, false, nil
	}
	if err != nil {
		return provider.TrackingRow{}, false, p.wrap(err)
	}

	tracking.OriginID = origin.String
	return tracking, true, nil
}

// ApplyRow implements [provider.Provider]. The base-table write, the
// tracking stamp and the clock advance happen in one transaction so a crash
// can only lose whole rows, which the watermark invariant makes retryable.
// The tracking stamp supersedes what the capture trigger just recorded for
// the same write, so the incoming version and origin win.
func (p *liteProvider) ApplyRow(ctx context.Context, table models.TableSchema, row models.SyncRow, origin string) error {
	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return p.wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err = p.applyRowTx(ctx, tx, table, row, origin); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return p.wrap(err)
	}
	return nil
}

func (p *liteProvider) applyRowTx(ctx context.Context, tx *sql.Tx, table models.TableSchema, row models.SyncRow, origin string) error {
	_, updateSQL, deleteSQL, err := buildBulkStatements(table)
	if err != nil {
		return err
	}

	pks := table.PrimaryKeys()
	switch row.State {
	case models.RowDeleted:
		args := make([]any, 0, len(pks))
		for _, pk := range pks {
			args = append(args, coerceArg(table, pk, row.Values[pk]))
		}
		if _, err = tx.ExecContext(ctx, deleteSQL, args...); err != nil {
			return p.wrap(err)
		}
	default:
		args := make([]any, 0, len(table.Columns))
		for _, col := range table.Columns {
			args = append(args, coerceArg(table, col.Name, row.Values[col.Name]))
		}
		if _, err = tx.ExecContext(ctx, updateSQL, args...); err != nil {
			return p.wrap(err)
		}
	}

	if err = p.stampTrackingTx(ctx, tx, table, row, origin); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, advanceWatermark, row.Version); err != nil {
		return p.wrap(err)
	}
	return nil
}

// stampTrackingTx overwrites the tracking record with the incoming row's
// version and origin, superseding whatever the change-capture trigger just
// recorded for the same write.
func (p *liteProvider) stampTrackingTx(ctx context.Context, tx *sql.Tx, table models.TableSchema, row models.SyncRow, origin string) error {
	pks := table.PrimaryKeys()

	cols := make([]string, 0, len(pks)+3)
	vals := make([]any, 0, len(pks)+3)
	for _, pk := range pks {
		cols = append(cols, quoteIdent(pk))
		vals = append(vals, coerceArg(table, pk, row.Values[pk]))
	}
	cols = append(cols, "row_version", "tombstone", "origin_id")
	vals = append(vals, row.Version, row.State == models.RowDeleted, origin)

	builder := sq.Insert(quoteIdent(trackingTableName(table.Name))).
		Columns(cols...).
		Values(vals...).
		Suffix(fmt.Sprintf(`ON CONFLICT (%s) DO UPDATE SET
			row_version = excluded.row_version,
			tombstone   = excluded.tombstone,
			origin_id   = excluded.origin_id,
			last_change = CURRENT_TIMESTAMP`, strings.Join(quoteAll(pks), ", "))).
		PlaceholderFormat(sq.Question)

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build tracking stamp: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return p.wrap(err)
	}
	return nil
}

// BulkApplyRows implements [provider.Provider]. One transaction covers the
// whole slice; used by the snapshot import path where conflict checks are
// unnecessary.
func (p *liteProvider) BulkApplyRows(ctx context.Context, table models.TableSchema, rows []models.SyncRow, mode provider.ApplyMode, origin string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, p.wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck

	applied := 0
	for _, row := range rows {
		r := row
		if mode == provider.ApplyDelete {
			r.State = models.RowDeleted
		}
		if err = p.applyRowTx(ctx, tx, table, r, origin); err != nil {
			return applied, err
		}
		applied++
	}

	if err = tx.Commit(); err != nil {
		return 0, p.wrap(err)
	}
	return applied, nil
}

// DeleteMetadata implements [provider.Provider].
func (p *liteProvider) DeleteMetadata(ctx context.Context, table models.TableSchema, before int64) (int64, error) {
	query, args, err := sq.Delete(quoteIdent(trackingTableName(table.Name))).
		Where(sq.LtOrEq{"row_version": before}).
		Where(sq.Eq{"tombstone": 1}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build metadata cleanup: %w", err)
	}

	res, err := p.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, p.wrap(err)
	}

	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// WipeData implements [provider.Provider]. Tables arrive children-first so
// plain DELETEs respect foreign keys.
func (p *liteProvider) WipeData(ctx context.Context, tables []models.TableSchema) error {
	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return p.wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range tables {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+qualifiedName(table)+`;`); err != nil {
			return p.wrap(err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+quoteIdent(trackingTableName(table.Name))+`;`); err != nil {
			return p.wrap(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return p.wrap(err)
	}
	return nil
}

// coerceArg converts JSON-decoded values into what the column expects.
// encoding/json turns every number into float64; integral columns reject a
// float parameter in comparisons, so integral float64 values are folded
// back to int64.
func coerceArg(table models.TableSchema, column string, value any) any {
	f, ok := value.(float64)
	if !ok {
		return value
	}

	for _, col := range table.Columns {
		if col.Name != column {
			continue
		}
		switch strings.ToUpper(col.DataType) {
		case "INTEGER", "INT", "BIGINT", "SMALLINT", "TINYINT":
			if f == float64(int64(f)) {
				return int64(f)
			}
		}
	}
	return f
}
