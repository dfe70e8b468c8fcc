// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
	"github.com/google/uuid"
)

// snapshotInfoFile is the descriptor name inside a scope's snapshot root.
const snapshotInfoFile = "info.json"

// SnapshotManager creates and serves durable full exports of a scope so a
// new client can bootstrap without replaying the whole change history.
//
// Layout under the snapshots directory:
//
//	<scope>/info.json          descriptor of the current snapshot
//	<scope>/<watermark>/*.part serialized batch parts
//
// Exactly one snapshot is retained per scope; creating a new one rewrites
// the descriptor and removes older part directories.
type SnapshotManager struct {
	provider   provider.Provider
	serializer Serializer
	directory  string
	batchSize  int
	logger     *logger.Logger
}

// NewSnapshotManager wires a snapshot manager from engine options.
func NewSnapshotManager(p provider.Provider, opts Options, log *logger.Logger) *SnapshotManager {
	return &SnapshotManager{
		provider:   p,
		serializer: opts.serializer(),
		directory:  opts.SnapshotsDirectory,
		batchSize:  opts.batchSize(),
		logger:     log,
	}
}

// Create exports every row of the schema at the current watermark. The
// descriptor is written last, so a crash mid-export leaves the previous
// snapshot intact.
func (m *SnapshotManager) Create(ctx context.Context, scope string, schema []models.TableSchema) (*models.SnapshotInfo, error) {
	if m.directory == "" {
		return nil, wrapPhase(PhaseSelection, scope, errors.New("snapshots directory not configured"))
	}

	watermark, err := withRetry(ctx, m.provider.Classifier(), func() (int64, error) {
		return m.provider.CurrentWatermark(ctx)
	})
	if err != nil {
		return nil, wrapPhase(PhaseSelection, scope, err)
	}

	scopeDir := filepath.Join(m.directory, scope)
	partDir := filepath.Join(scopeDir, strconv.FormatInt(watermark, 10))
	if err = os.MkdirAll(partDir, 0o750); err != nil {
		return nil, wrapPhase(PhaseSelection, scope, fmt.Errorf("create snapshot directory: %w", err))
	}

	info := &models.SnapshotInfo{
		ScopeName: scope,
		Watermark: watermark,
		Batch:     models.BatchInfo{Directory: partDir, Watermark: watermark},
	}

	for _, table := range schema {
		if !table.Direction.AllowsDownload() {
			continue
		}

		rows, selErr := withRetry(ctx, m.provider.Classifier(), func() ([]models.SyncRow, error) {
			return m.provider.SelectAllRows(ctx, table)
		})
		if selErr != nil {
			return nil, wrapTable(PhaseSelection, scope, table.Name, "", selErr)
		}

		if err = m.writeParts(info, table.Name, rows); err != nil {
			return nil, wrapTable(PhaseSelection, scope, table.Name, "", err)
		}
	}

	if err = m.writeDescriptor(scopeDir, info); err != nil {
		return nil, wrapPhase(PhaseSelection, scope, err)
	}
	m.prune(scopeDir, partDir)

	m.logger.Info().
		Str("func", "*SnapshotManager.Create").
		Str("scope", scope).
		Int64("watermark", watermark).
		Int("rows", info.Batch.RowCount()).
		Msg("snapshot created")

	return info, nil
}

// Load reads the current snapshot descriptor for scope, returning
// ErrSnapshotNotFound when none was ever created.
func (m *SnapshotManager) Load(scope string) (*models.SnapshotInfo, error) {
	data, err := os.ReadFile(filepath.Join(m.directory, scope, snapshotInfoFile))
	if os.IsNotExist(err) || m.directory == "" {
		return nil, fmt.Errorf("%w: scope %q", ErrSnapshotNotFound, scope)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot descriptor: %w", err)
	}

	var info models.SnapshotInfo
	if err = json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode snapshot descriptor: %w", err)
	}
	info.Batch.Directory = filepath.Join(m.directory, scope, strconv.FormatInt(info.Watermark, 10))
	return &info, nil
}

// ReadPart decodes one snapshot part from disk.
func (m *SnapshotManager) ReadPart(info *models.SnapshotInfo, part models.BatchPartInfo) ([]models.SyncRow, error) {
	data, err := os.ReadFile(filepath.Join(info.Batch.Directory, part.FileName))
	if err != nil {
		return nil, fmt.Errorf("read snapshot part: %w", err)
	}
	return m.serializer.Deserialize(data)
}

// writeParts serializes rows into ≤batchSize durable part files.
func (m *SnapshotManager) writeParts(info *models.SnapshotInfo, table string, rows []models.SyncRow) error {
	index := 0
	for start := 0; start < len(rows); start += m.batchSize {
		end := start + m.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		payload, err := m.serializer.Serialize(rows[start:end])
		if err != nil {
			return err
		}

		name := uuid.NewString() + ".part"
		if err = os.WriteFile(filepath.Join(info.Batch.Directory, name), payload, 0o600); err != nil {
			return fmt.Errorf("write snapshot part: %w", err)
		}

		info.Batch.Parts = append(info.Batch.Parts, models.BatchPartInfo{
			Table:    table,
			Index:    index,
			RowCount: end - start,
			FileName: name,
		})
		index++
	}
	return nil
}

// writeDescriptor replaces info.json atomically via rename.
func (m *SnapshotManager) writeDescriptor(scopeDir string, info *models.SnapshotInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot descriptor: %w", err)
	}

	tmp := filepath.Join(scopeDir, snapshotInfoFile+".tmp")
	if err = os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot descriptor: %w", err)
	}
	if err = os.Rename(tmp, filepath.Join(scopeDir, snapshotInfoFile)); err != nil {
		return fmt.Errorf("publish snapshot descriptor: %w", err)
	}
	return nil
}

// prune removes superseded part directories, best effort.
func (m *SnapshotManager) prune(scopeDir, keep string) {
	entries, err := os.ReadDir(scopeDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(scopeDir, entry.Name())
		if dir == keep {
			continue
		}
		if err = os.RemoveAll(dir); err != nil {
			m.logger.Warn().Err(err).
				Str("func", "*SnapshotManager.prune").
				Str("dir", dir).
				Msg("failed to remove superseded snapshot")
		}
	}
}
