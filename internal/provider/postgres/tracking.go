// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package postgres

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
// applied change (NULL for local application writes).
func (p *pgProvider) CreateTrackingTable(ctx context.Context, table models.TableSchema) error {
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
		row_version bigint NOT NULL,
		tombstone   boolean NOT NULL DEFAULT false,
		origin_id   text,
		last_change timestamptz NOT NULL DEFAULT now(),
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
			Str("func", "*pgProvider.CreateTrackingTable").
			Str("table", table.Name).
			Msg("failed to create tracking table")
		return p.wrap(err)
	}

	// Rows that existed before provisioning predate the triggers; without a
	// tracking record they would never be selected. Backfill them at the
	// current clock so a first sync carries the initial dataset.
	prefixed := make([]string, 0, len(pkNames))
	for _, pk := range pkNames {
		prefixed = append(prefixed, "b."+pk)
	}
	backfill := fmt.Sprintf(`INSERT INTO %s (%s, row_version, tombstone, origin_id, last_change)
	SELECT %s, nextval('%s'), false, NULL, now()
	FROM %s b
	ON CONFLICT (%s) DO NOTHING;`,
		tracking, strings.Join(pkNames, ", "),
		strings.Join(prefixed, ", "), versionSequence,
		qualifiedName(table),
		strings.Join(pkNames, ", "),
	)

	if _, err := p.conn.ExecContext(ctx, backfill); err != nil {
		log.Err(err).
			Str("func", "*pgProvider.CreateTrackingTable").
			Str("table", table.Name).
			Msg("failed to backfill tracking table")
		return p.wrap(err)
	}

	return nil
}

// DropTrackingTable implements [provider.Provider]. Missing objects are not
// an error so deprovisioning stays idempotent.
func (p *pgProvider) DropTrackingTable(ctx context.Context, table models.TableSchema) error {
	ddl := fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, quoteIdent(trackingTableName(table.Name)))
	if _, err := p.conn.ExecContext(ctx, ddl); err != nil {
		return p.wrap(err)
	}
	return nil
}

// ExistsTrackingTable implements [provider.Provider].
func (p *pgProvider) ExistsTrackingTable(ctx context.Context, tableName string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	);`

	var exists bool
	if err := p.conn.QueryRowContext(ctx, query, trackingTableName(tableName)).Scan(&exists); err != nil {
		return false, p.wrap(err)
	}
	return exists, nil
}

// CreateTriggers implements [provider.Provider]. One plpgsql function per
// table handles all three operations; three AFTER triggers invoke it so the
// per-kind existence contract can be checked through information_schema.
func (p *pgProvider) CreateTriggers(ctx context.Context, table models.TableSchema) error {
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

	function := fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $fn$
	BEGIN
		IF (TG_OP = 'DELETE') THEN
			INSERT INTO %s (%s, row_version, tombstone, origin_id, last_change)
			VALUES (%s, nextval('%s'), true, NULL, now())
			ON CONFLICT (%s) DO UPDATE SET
				row_version = EXCLUDED.row_version,
				tombstone   = true,
				origin_id   = NULL,
				last_change = now();
			RETURN OLD;
		END IF;

		INSERT INTO %s (%s, row_version, tombstone, origin_id, last_change)
		VALUES (%s, nextval('%s'), false, NULL, now())
		ON CONFLICT (%s) DO UPDATE SET
			row_version = EXCLUDED.row_version,
			tombstone   = false,
			origin_id   = NULL,
			last_change = now();
		RETURN NEW;
	END;
	$fn$ LANGUAGE plpgsql;`,
		quoteIdent(trackFunctionName(table.Name)),
		tracking, pkList, strings.Join(oldPKs, ", "), versionSequence, pkList,
		tracking, pkList, strings.Join(newPKs, ", "), versionSequence, pkList,
	)

	if _, err := p.conn.ExecContext(ctx, function); err != nil {
		log.Err(err).
			Str("func", "*pgProvider.CreateTriggers").
			Str("table", table.Name).
			Msg("failed to create tracking function")
		return p.wrap(err)
	}

	for _, kind := range []provider.TriggerKind{provider.TriggerInsert, provider.TriggerUpdate, provider.TriggerDelete} {
		ddl := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s;
		CREATE TRIGGER %s AFTER %s ON %s
		FOR EACH ROW EXECUTE FUNCTION %s();`,
			quoteIdent(triggerName(table.Name, kind)), qualifiedName(table),
			quoteIdent(triggerName(table.Name, kind)), strings.ToUpper(string(kind)), qualifiedName(table),
			quoteIdent(trackFunctionName(table.Name)),
		)
		if _, err := p.conn.ExecContext(ctx, ddl); err != nil {
			log.Err(err).
				Str("func", "*pgProvider.CreateTriggers").
				Str("table", table.Name).
				Str("kind", string(kind)).
				Msg("failed to create trigger")
			return p.wrap(err)
		}
	}

	return nil
}

// DropTriggers implements [provider.Provider].
func (p *pgProvider) DropTriggers(ctx context.Context, table models.TableSchema) error {
	for _, kind := range []provider.TriggerKind{provider.TriggerInsert, provider.TriggerUpdate, provider.TriggerDelete} {
		ddl := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s;`,
			quoteIdent(triggerName(table.Name, kind)), qualifiedName(table))
		if _, err := p.conn.ExecContext(ctx, ddl); err != nil {
			return p.wrap(err)
		}
	}

	ddl := fmt.Sprintf(`DROP FUNCTION IF EXISTS %s();`, quoteIdent(trackFunctionName(table.Name)))
	if _, err := p.conn.ExecContext(ctx, ddl); err != nil {
		return p.wrap(err)
	}
	return nil
}

// ExistsTrigger implements [provider.Provider].
func (p *pgProvider) ExistsTrigger(ctx context.Context, tableName string, kind provider.TriggerKind) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM information_schema.triggers
		WHERE trigger_schema = current_schema() AND event_object_table = $1 AND trigger_name = $2
	);`

	var exists bool
	if err := p.conn.QueryRowContext(ctx, query, tableName, triggerName(tableName, kind)).Scan(&exists); err != nil {
		return false, p.wrap(err)
	}
	return exists, nil
}

// CreateBulkProcedures implements [provider.Provider]. The procedure
// equivalent on this backend is a precomputed statement registry: the
// upsert, update and delete texts for the table's exact column subset are
// generated once at provisioning time and reused by every bulk apply.
func (p *pgProvider) CreateBulkProcedures(ctx context.Context, table models.TableSchema) error {
	insertSQL, updateSQL, deleteSQL, err := buildBulkStatements(table)
	if err != nil {
		return err
	}

	const upsert = `INSERT INTO sync_bulk_statements (table_name, insert_sql, update_sql, delete_sql)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (table_name) DO UPDATE SET
		insert_sql = EXCLUDED.insert_sql,
		update_sql = EXCLUDED.update_sql,
		delete_sql = EXCLUDED.delete_sql;`

	if _, err = p.conn.ExecContext(ctx, upsert, table.Name, insertSQL, updateSQL, deleteSQL); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "*pgProvider.CreateBulkProcedures").
			Str("table", table.Name).
			Msg("failed to register bulk statements")
		return p.wrap(err)
	}
	return nil
}

// DropBulkProcedures implements [provider.Provider].
func (p *pgProvider) DropBulkProcedures(ctx context.Context, table models.TableSchema) error {
	if _, err := p.conn.ExecContext(ctx, `DELETE FROM sync_bulk_statements WHERE table_name = $1;`, table.Name); err != nil {
		return p.wrap(err)
	}
	return nil
}

// ExistsBulkProcedure implements [provider.Provider].
func (p *pgProvider) ExistsBulkProcedure(ctx context.Context, tableName string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM sync_bulk_statements WHERE table_name = $1);`

	var exists bool
	if err := p.conn.QueryRowContext(ctx, query, tableName).Scan(&exists); err != nil {
		// The registry itself may not exist yet on an unprovisioned store.
		return false, nil
	}
	return exists, nil
}

// buildBulkStatements generates the three statement texts with squirrel so
// placeholder numbering always matches the column subset.
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
		PlaceholderFormat(sq.Dollar)
	insertSQL, _, err = insert.ToSql()
	if err != nil {
		return "", "", "", fmt.Errorf("build insert statement: %w", err)
	}

	updates := make([]string, 0, len(cols))
	for _, col := range cols {
		if isPrimaryKey(pks, col) {
			continue
		}
		updates = append(updates, quoteIdent(col)+" = EXCLUDED."+quoteIdent(col))
	}
	conflict := " ON CONFLICT (" + strings.Join(quoteAll(pks), ", ") + ") DO NOTHING"
	if len(updates) > 0 {
		conflict = " ON CONFLICT (" + strings.Join(quoteAll(pks), ", ") + ") DO UPDATE SET " + strings.Join(updates, ", ")
	}
	updateSQL = insertSQL + conflict

	del := sq.Delete(qualifiedName(table)).PlaceholderFormat(sq.Dollar)
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

func trackFunctionName(tableName string) string {
	return "sync_" + tableName + "_track"
}

func triggerName(tableName string, kind provider.TriggerKind) string {
	return "sync_" + tableName + "_" + string(kind) + "_trg"
}
