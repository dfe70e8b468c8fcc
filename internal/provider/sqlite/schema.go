// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sqlite

import (
	"context"
	"fmt"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

// IntrospectSchema implements [provider.Provider]. Column, key and
// foreign-key metadata come from the table_info and foreign_key_list
// pragmas. Introspection fails on the first missing table or column so a
// broken setup never half-provisions.
func (p *liteProvider) IntrospectSchema(ctx context.Context, setup models.SyncSetup) ([]models.TableSchema, error) {
	log := logger.FromContext(ctx)

	tables := make([]models.TableSchema, 0, len(setup.Tables))
	for _, entry := range setup.Tables {
		table, err := p.introspectTable(ctx, entry)
		if err != nil {
			log.Err(err).
				Str("func", "*liteProvider.IntrospectSchema").
				Str("table", entry.TableName).
				Msg("schema introspection failed")
			return nil, err
		}
		tables = append(tables, table)
	}

	return models.OrderByDependency(tables), nil
}

func (p *liteProvider) introspectTable(ctx context.Context, entry models.SetupTable) (models.TableSchema, error) {
	columns, err := p.tableColumns(ctx, entry.TableName)
	if err != nil {
		return models.TableSchema{}, err
	}
	if len(columns) == 0 {
		return models.TableSchema{}, fmt.Errorf("%w: %q", provider.ErrMissingTable, entry.TableName)
	}

	hasPK := false
	for _, col := range columns {
		if col.IsPrimaryKey {
			hasPK = true
			break
		}
	}
	if !hasPK {
		return models.TableSchema{}, fmt.Errorf("%w: %q", provider.ErrMissingPrimaryKey, entry.TableName)
	}

	columns, err = provider.FilterColumns(columns, entry)
	if err != nil {
		return models.TableSchema{}, err
	}

	fks, err := p.foreignKeys(ctx, entry.TableName)
	if err != nil {
		return models.TableSchema{}, err
	}

	return models.TableSchema{
		Name:        entry.TableName,
		Columns:     columns,
		ForeignKeys: fks,
		Direction:   entry.EffectiveDirection(),
		Filter:      entry.Filter,
	}, nil
}

// tableColumns reads PRAGMA table_info: cid, name, type, notnull,
// dflt_value, pk. The pk column holds the 1-based position of the column in
// the primary key, or 0.
func (p *liteProvider) tableColumns(ctx context.Context, tableName string) ([]models.ColumnSchema, error) {
	rows, err := p.conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s);`, quoteIdent(tableName)))
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	columns := make([]models.ColumnSchema, 0, 8)
	for rows.Next() {
		var (
			cid       int
			name      string
			dataType  string
			notNull   int
			dfltValue any
			pk        int
		)
		if err = rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("%w: %w", provider.ErrScanningRow, err)
		}
		columns = append(columns, models.ColumnSchema{
			Name:         name,
			DataType:     dataType,
			IsPrimaryKey: pk > 0,
			IsNullable:   notNull == 0,
			Ordinal:      cid,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrScanningRows, err)
	}

	return columns, nil
}

// foreignKeys reads PRAGMA foreign_key_list: id, seq, table, from, to,
// on_update, on_delete, match.
func (p *liteProvider) foreignKeys(ctx context.Context, tableName string) ([]models.ForeignKey, error) {
	rows, err := p.conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%s);`, quoteIdent(tableName)))
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	fks := make([]models.ForeignKey, 0, 2)
	for rows.Next() {
		var (
			id, seq            int
			parentTable        string
			from               string
			to                 any
			onUpdate, onDelete string
			match              string
		)
		if err = rows.Scan(&id, &seq, &parentTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("%w: %w", provider.ErrScanningRow, err)
		}

		// "to" is NULL when the reference targets the parent's implicit
		// primary key.
		parentColumn := ""
		if s, ok := provider.NormalizeValue(to).(string); ok {
			parentColumn = s
		}

		fks = append(fks, models.ForeignKey{
			Column:       from,
			ParentTable:  parentTable,
			ParentColumn: parentColumn,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrScanningRows, err)
	}

	return fks, nil
}
