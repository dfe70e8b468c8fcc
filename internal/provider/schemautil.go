// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package provider

import (
	"fmt"

	"github.com/MKhiriev/go-row-sync/models"
)

// FilterColumns keeps the setup entry's column subset of an introspected
// column list. Primary-key columns are always kept regardless of the subset.
// A listed column the table does not define fails with ErrMissingColumn —
// backends share this validation so every one fails the same way.
func FilterColumns(columns []models.ColumnSchema, entry models.SetupTable) ([]models.ColumnSchema, error) {
	if len(entry.Columns) == 0 {
		return columns, nil
	}

	wanted := make(map[string]bool, len(entry.Columns))
	for _, name := range entry.Columns {
		wanted[name] = true
	}

	kept := make([]models.ColumnSchema, 0, len(entry.Columns))
	for _, col := range columns {
		if wanted[col.Name] || col.IsPrimaryKey {
			kept = append(kept, col)
			delete(wanted, col.Name)
		}
	}

	for name := range wanted {
		return nil, fmt.Errorf("%w: %q in table %q", ErrMissingColumn, name, entry.TableName)
	}

	return kept, nil
}

// NormalizeValue folds driver-specific scan results into JSON-friendly Go
// values: []byte becomes string, integer widths collapse to int64.
func NormalizeValue(v any) any {
	switch value := v.(type) {
	case []byte:
		return string(value)
	case int:
		return int64(value)
	case int32:
		return int64(value)
	default:
		return v
	}
}
