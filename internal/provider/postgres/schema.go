// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package postgres

import (
	"context"
	"fmt"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

const (
	selectColumns = `SELECT column_name, data_type, is_nullable, ordinal_position
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position;`

	selectPrimaryKeys = `SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2
	ORDER BY kcu.ordinal_position;`

	selectForeignKeys = `SELECT kcu.column_name, ccu.table_name, ccu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	JOIN information_schema.constraint_column_usage ccu
		ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
	WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2;`
)

// IntrospectSchema implements [provider.Provider]. It resolves every setup
// entry against information_schema, keeping only the selected column subset
// (primary keys are always kept). Validation is fail-fast: the first missing
// table or column aborts introspection before any DDL could run.
func (p *pgProvider) IntrospectSchema(ctx context.Context, setup models.SyncSetup) ([]models.TableSchema, error) {
	log := logger.FromContext(ctx)

	tables := make([]models.TableSchema, 0, len(setup.Tables))
	for _, entry := range setup.Tables {
		table, err := p.introspectTable(ctx, entry)
		if err != nil {
			log.Err(err).
				Str("func", "*pgProvider.IntrospectSchema").
				Str("table", entry.TableName).
				Msg("schema introspection failed")
			return nil, err
		}
		tables = append(tables, table)
	}

	return models.OrderByDependency(tables), nil
}

func (p *pgProvider) introspectTable(ctx context.Context, entry models.SetupTable) (models.TableSchema, error) {
	schemaName := entry.SchemaName
	if schemaName == "" {
		schemaName = "public"
	}

	columns, err := p.selectTableColumns(ctx, schemaName, entry.TableName)
	if err != nil {
		return models.TableSchema{}, err
	}
	if len(columns) == 0 {
		return models.TableSchema{}, fmt.Errorf("%w: %q", provider.ErrMissingTable, entry.TableName)
	}

	pks, err := p.selectTablePrimaryKeys(ctx, schemaName, entry.TableName)
	if err != nil {
		return models.TableSchema{}, err
	}
	if len(pks) == 0 {
		return models.TableSchema{}, fmt.Errorf("%w: %q", provider.ErrMissingPrimaryKey, entry.TableName)
	}
	for i := range columns {
		for _, pk := range pks {
			if columns[i].Name == pk {
				columns[i].IsPrimaryKey = true
			}
		}
	}

	columns, err = provider.FilterColumns(columns, entry)
	if err != nil {
		return models.TableSchema{}, err
	}

	fks, err := p.selectTableForeignKeys(ctx, schemaName, entry.TableName)
	if err != nil {
		return models.TableSchema{}, err
	}

	return models.TableSchema{
		Name:        entry.TableName,
		SchemaName:  entry.SchemaName,
		Columns:     columns,
		ForeignKeys: fks,
		Direction:   entry.EffectiveDirection(),
		Filter:      entry.Filter,
	}, nil
}

func (p *pgProvider) selectTableColumns(ctx context.Context, schemaName, tableName string) ([]models.ColumnSchema, error) {
	rows, err := p.conn.QueryContext(ctx, selectColumns, schemaName, tableName)
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	columns := make([]models.ColumnSchema, 0, 16)
	for rows.Next() {
		var col models.ColumnSchema
		var nullable string
		if err = rows.Scan(&col.Name, &col.DataType, &nullable, &col.Ordinal); err != nil {
			return nil, fmt.Errorf("%w: %w", provider.ErrScanningRow, err)
		}
		col.IsNullable = nullable == "YES"
		columns = append(columns, col)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrScanningRows, err)
	}

	return columns, nil
}

func (p *pgProvider) selectTablePrimaryKeys(ctx context.Context, schemaName, tableName string) ([]string, error) {
	rows, err := p.conn.QueryContext(ctx, selectPrimaryKeys, schemaName, tableName)
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	keys := make([]string, 0, 2)
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%w: %w", provider.ErrScanningRow, err)
		}
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrScanningRows, err)
	}

	return keys, nil
}

func (p *pgProvider) selectTableForeignKeys(ctx context.Context, schemaName, tableName string) ([]models.ForeignKey, error) {
	rows, err := p.conn.QueryContext(ctx, selectForeignKeys, schemaName, tableName)
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	fks := make([]models.ForeignKey, 0, 2)
	for rows.Next() {
		var fk models.ForeignKey
		if err = rows.Scan(&fk.Column, &fk.ParentTable, &fk.ParentColumn); err != nil {
			return nil, fmt.Errorf("%w: %w", provider.ErrScanningRow, err)
		}
		fks = append(fks, fk)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrScanningRows, err)
	}

	return fks, nil
}
