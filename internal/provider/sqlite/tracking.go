// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sqlite

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

// CreateTrackingTable implements [provider.Provider]. The tracking table
// mirrors the base table's primary-key columns and records one change entry
// per row: logical version, tombstone flag, and the origin peer of the last
// applied change (NULL for local writes).
func (p *liteProvider) CreateTrackingTable(ctx context.Context, table models.TableSchema) error {
	log := logger.FromContext(ctx)

	pkDefs := make([]string, 0, 2)
	pkNames := make([]string, 0, 2)
	for _, col := range table.Columns {
		if !col.IsPrimaryKey {
			continue
		}
		pkDefs = append(pkDefs, quoteIdent(col.Name)+" "+col.DataType+" NOT NULL")
		pkNames = append(pkNames, quoteIdent(col.Name))
	}
	if len(pkNames) == 0 {
		return fmt.Errorf("%w: %q", provider.ErrMissingPrimaryKey, table.Name)
	}

	tracking := quoteIdent(trackingTableName(table.Name))
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s,
		row_version INTEGER NOT NULL,
		tombstone   INTEGER NOT NULL DEFAULT 0,
		origin_id   TEXT,
		last_change TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (%s)
	);
	CREATE INDEX IF NOT EXISTS %s ON %s (row_version);`,
		tracking,
		strings.Join(pkDefs, ",\n\t\t"),
		strings.Join(pkNames, ", "),
		quoteIdent(trackingTableName(table.Name)+"_version_idx"),
		tracking,
	)

	if _, err := p.conn.ExecContext(ctx, ddl); err != nil {
		log.Err(err).
			Str("func", "*liteProvider.CreateTrackingTable").
			Str("table", table.Name).
			Msg("failed to create tracking table")
		return p.wrap(err)
	}

	// Rows that existed before provisioning predate the triggers; without a
	// tracking record they would never be selected. Backfill them at the
	// current clock so a first sync carries the initial dataset.
	backfill := fmt.Sprintf(`UPDATE sync_version_seq SET seq = seq + 1 WHERE id = 1;
	INSERT OR IGNORE INTO %s (%s, row_version, tombstone, origin_id, last_change)
	SELECT %s, (SELECT seq FROM sync_version_seq WHERE id = 1), 0, NULL, CURRENT_TIMESTAMP
	FROM %s b;`,
		tracking, strings.Join(pkNames, ", "),
		prefixAll("b.", pkNames),
		qualifiedName(table),
	)

	if _, err := p.conn.ExecContext(ctx, backfill); err != nil {
		log.Err(err).
			Str("func", "*liteProvider.CreateTrackingTable").
			Str("table", table.Name).
			Msg("failed to backfill tracking table")
		return p.wrap(err)
	}

	return nil
}

func prefixAll(prefix string, names []string) string {
	prefixed := make([]string, 0, len(names))
	for _, n := range names {
		prefixed = append(prefixed, prefix+n)
	}
	return strings.Join(prefixed, ", ")
}

// DropTrackingTable implements [provider.Provider]. Missing objects are not
// an error so deprovisioning stays idempotent.
func (p *liteProvider) DropTrackingTable(ctx context.Context, table models.TableSchema) error {
	ddl := fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, quoteIdent(trackingTableName(table.Name)))
	if _, err := p.conn.ExecContext(ctx, ddl); err != nil {
		return p.wrap(err)
	}
	return nil
}

// ExistsTrackingTable implements [provider.Provider].
func (p *liteProvider) ExistsTrackingTable(ctx context.Context, tableName string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?
	);`

	var exists bool
	if err := p.conn.QueryRowContext(ctx, query, trackingTableName(tableName)).Scan(&exists); err != nil {
		return false, p.wrap(err)
	}
	return exists, nil
}

// CreateTriggers implements [provider.Provider]. SQLite triggers fire on
// one event each, so the table gets three. Each trigger bumps the logical
// clock and upserts the tracking record with the new counter value and a
// NULL origin, marking the change as locally made.
func (p *liteProvider) CreateTriggers(ctx context.Context, table models.TableSchema) error {
	log := logger.FromContext(ctx)

	pks := table.PrimaryKeys()
	if len(pks) == 0 {
		return fmt.Errorf("%w: %q", provider.ErrMissingPrimaryKey, table.Name)
	}

	tracking := quoteIdent(trackingTableName(table.Name))
	quotedPKs := make([]string, 0, len(pks))
	newPKs := make([]string, 0, len(pks))
	oldPKs := make([]string, 0, len(pks))
	for _, pk := range pks {
		quotedPKs = append(quotedPKs, quoteIdent(pk))
		newPKs = append(newPKs, "NEW."+quoteIdent(pk))
		oldPKs = append(oldPKs, "OLD."+quoteIdent(pk))
	}
	pkList := strings.Join(quotedPKs, ", ")

	for _, kind := range []provider.TriggerKind{provider.TriggerInsert, provider.TriggerUpdate, provider.TriggerDelete} {
		refPKs := strings.Join(newPKs, ", ")
		tombstone := "0"
		if kind == provider.TriggerDelete {
			refPKs = strings.Join(oldPKs, ", ")
			tombstone = "1"
		}

		ddl := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s;
		CREATE TRIGGER %s AFTER %s ON %s
		FOR EACH ROW
		BEGIN
			UPDATE sync_version_seq SET seq = seq + 1 WHERE id = 1;
			INSERT INTO %s (%s, row_version, tombstone, origin_id, last_change)
			VALUES (%s, (SELECT seq FROM sync_version_seq WHERE id = 1), %s, NULL, CURRENT_TIMESTAMP)
			ON CONFLICT (%s) DO UPDATE SET
				row_version = excluded.row_version,
				tombstone   = %s,
				origin_id   = NULL,
				last_change = CURRENT_TIMESTAMP;
		END;`,
			quoteIdent(triggerName(table.Name, kind)),
			quoteIdent(triggerName(table.Name, kind)), strings.ToUpper(string(kind)), qualifiedName(table),
			tracking, pkList,
			refPKs, tombstone,
			pkList,
			tombstone,
		)

		if _, err := p.conn.ExecContext(ctx, ddl); err != nil {
			log.Err(err).
				Str("func", "*liteProvider.CreateTriggers").
				Str("table", table.Name).
				Str("kind", string(kind)).
				Msg("failed to create trigger")
			return p.wrap(err)
		}
	}

	return nil
}

// DropTriggers implements [provider.Provider].
func (p *liteProvider) DropTriggers(ctx context.Context, table models.TableSchema) error {
	for _, kind := range []provider.TriggerKind{provider.TriggerInsert, provider.TriggerUpdate, provider.TriggerDelete} {
		ddl := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s;`, quoteIdent(triggerName(table.Name, kind)))
		if _, err := p.conn.ExecContext(ctx, ddl); err != nil {
			return p.wrap(err)
		}
	}
	return nil
}

// ExistsTrigger implements [provider.Provider].
func (p *liteProvider) ExistsTrigger(ctx context.Context, tableName string, kind provider.TriggerKind) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM sqlite_master WHERE type = 'trigger' AND name = ?
	);`

	var exists bool
	if err := p.conn.QueryRowContext(ctx, query, triggerName(tableName, kind)).Scan(&exists); err != nil {
		return false, p.wrap(err)
	}
	return exists, nil
}

// CreateBulkProcedures implements [provider.Provider]. The procedure
// equivalent on this backend is the same precomputed statement registry the
// PostgreSQL provider keeps: upsert, update and delete texts for the
// table's exact column subset, generated once at provisioning time.
func (p *liteProvider) CreateBulkProcedures(ctx context.Context, table models.TableSchema) error {
	insertSQL, updateSQL, deleteSQL, err := buildBulkStatements(table)
	if err != nil {
		return err
	}

	const upsert = `INSERT INTO sync_bulk_statements (table_name, insert_sql, update_sql, delete_sql)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (table_name) DO UPDATE SET
		insert_sql = excluded.insert_sql,
		update_sql = excluded.update_sql,
		delete_sql = excluded.delete_sql;`

	if _, err = p.conn.ExecContext(ctx, upsert, table.Name, insertSQL, updateSQL, deleteSQL); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "*liteProvider.CreateBulkProcedures").
			Str("table", table.Name).
			Msg("failed to register bulk statements")
		return p.wrap(err)
	}
	return nil
}

// DropBulkProcedures implements [provider.Provider].
func (p *liteProvider) DropBulkProcedures(ctx context.Context, table models.TableSchema) error {
	if _, err := p.conn.ExecContext(ctx, `DELETE FROM sync_bulk_statements WHERE table_name = ?;`, table.Name); err != nil {
		return p.wrap(err)
	}
	return nil
}

// ExistsBulkProcedure implements [provider.Provider].
func (p *liteProvider) ExistsBulkProcedure(ctx context.Context, tableName string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM sync_bulk_statements WHERE table_name = ?);`

	var exists bool
	if err := p.conn.QueryRowContext(ctx, query, tableName).Scan(&exists); err != nil {
		// The registry itself may not exist yet on an unprovisioned store.
		return false, nil
	}
	return exists, nil
}

// buildBulkStatements generates the three statement texts with squirrel so
// argument order always matches the column subset.
func buildBulkStatements(table models.TableSchema) (insertSQL, updateSQL, deleteSQL string, err error) {
	cols := table.ColumnNames()
	pks := table.PrimaryKeys()
	if len(pks) == 0 {
		return "", "", "", fmt.Errorf("%w: %q", provider.ErrMissingPrimaryKey, table.Name)
	}

	placeholders := make([]any, len(cols))
	for i := range placeholders {
		placeholders[i] = sq.Expr("?")
	}

	insert := sq.Insert(qualifiedName(table)).
		Columns(quoteAll(cols)...).
		Values(placeholders...).
		PlaceholderFormat(sq.Question)
	insertSQL, _, err = insert.ToSql()
	if err != nil {
		return "", "", "", fmt.Errorf("build insert statement: %w", err)
	}

	updates := make([]string, 0, len(cols))
	for _, col := range cols {
		if isPrimaryKey(pks, col) {
			continue
		}
		updates = append(updates, quoteIdent(col)+" = excluded."+quoteIdent(col))
	}
	conflict := " ON CONFLICT (" + strings.Join(quoteAll(pks), ", ") + ") DO NOTHING"
	if len(updates) > 0 {
		conflict = " ON CONFLICT (" + strings.Join(quoteAll(pks), ", ") + ") DO UPDATE SET " + strings.Join(updates, ", ")
	}
	updateSQL = insertSQL + conflict

	del := sq.Delete(qualifiedName(table)).PlaceholderFormat(sq.Question)
	for _, pk := range pks {
		del = del.Where(quoteIdent(pk) + " = ?")
	}
	deleteSQL, _, err = del.ToSql()
	if err != nil {
		return "", "", "", fmt.Errorf("build delete statement: %w", err)
	}

	return insertSQL, updateSQL, deleteSQL, nil
}

func quoteAll(names []string) []string {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, quoteIdent(n))
	}
	return quoted
}

func isPrimaryKey(pks []string, col string) bool {
	for _, pk := range pks {
		if pk == col {
			return true
		}
	}
	return false
}

func triggerName(tableName string, kind provider.TriggerKind) string {
	return "sync_" + tableName + "_" + string(kind) + "_trg"
}
