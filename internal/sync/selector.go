// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

// Selector reads changed rows out of one store and packs them into a batch.
type Selector struct {
	provider provider.Provider
	batcher  *Batcher
	logger   *logger.Logger
}

// NewSelector builds a selector over one provider.
func NewSelector(p provider.Provider, batcher *Batcher, log *logger.Logger) *Selector {
	return &Selector{provider: p, batcher: batcher, logger: log}
}

// SelectChanges packs every change with version > since into a batch, in
// the schema's dependency order. Tables whose direction excludes the
// outbound side (upload on a client, download on the hub) are skipped.
// Rows last applied on behalf of excludeOrigin are left out so a peer never
// receives its own uploads back; an empty excludeOrigin keeps every row,
// which full rebuilds rely on.
//
// The batch watermark is the store's change counter read before selection;
// committing it after a complete apply cannot skip rows because every
// selected row's version is at or below it.
func (s *Selector) SelectChanges(ctx context.Context, schema []models.TableSchema, since int64, excludeOrigin string, upload bool) (*models.BatchInfo, []models.TableSelectionStat, error) {
	log := logger.FromContext(ctx)

	watermark, err := withRetry(ctx, s.provider.Classifier(), func() (int64, error) {
		return s.provider.CurrentWatermark(ctx)
	})
	if err != nil {
		return nil, nil, wrapPhase(PhaseSelection, "", err)
	}

	batch := &models.BatchInfo{Watermark: watermark}
	stats := make([]models.TableSelectionStat, 0, len(schema))

	for _, table := range schema {
		if !outbound(table.Direction, upload) {
			continue
		}

		rows, selErr := withRetry(ctx, s.provider.Classifier(), func() ([]models.SyncRow, error) {
			return s.provider.SelectChangedRows(ctx, table, since, excludeOrigin)
		})
		if selErr != nil {
			return nil, nil, wrapTable(PhaseSelection, "", table.Name, "", selErr)
		}

		if err = s.batcher.AppendRows(ctx, batch, table.Name, rows); err != nil {
			return nil, nil, wrapTable(PhaseSelection, "", table.Name, "", err)
		}
		stats = append(stats, models.TableSelectionStat{Table: table.Name, RowCount: len(rows)})

		log.Debug().
			Str("func", "*Selector.SelectChanges").
			Str("table", table.Name).
			Int64("since", since).
			Int("rows", len(rows)).
			Msg("table changes selected")
	}

	return batch, stats, nil
}

// outbound reports whether a table's direction allows changes to leave this
// side. upload is true when this side sends to the hub (client side) and
// false when it sends to a client (hub side).
func outbound(direction models.SyncDirection, upload bool) bool {
	if upload {
		return direction.AllowsUpload()
	}
	return direction.AllowsDownload()
}
