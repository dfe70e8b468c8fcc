// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/models"
	"github.com/google/uuid"
)

// Serializer encodes and decodes the row set of one batch part. The default
// is plain JSON; internal/crypto provides an AES-GCM encrypting wrapper.
type Serializer interface {
	Serialize(rows []models.SyncRow) ([]byte, error)
	Deserialize(payload []byte) ([]models.SyncRow, error)
}

// JSONSerializer is the default batch part codec.
type JSONSerializer struct{}

// Serialize implements [Serializer].
func (JSONSerializer) Serialize(rows []models.SyncRow) ([]byte, error) {
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode batch part: %w", err)
	}
	return payload, nil
}

// Deserialize implements [Serializer].
func (JSONSerializer) Deserialize(payload []byte) ([]models.SyncRow, error) {
	var rows []models.SyncRow
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode batch part: %w", err)
	}
	return rows, nil
}

// spillThreshold is the serialized part size above which the batcher writes
// the payload to disk instead of holding it in memory. Only applies when a
// batch directory is configured.
const spillThreshold = 1 << 20

// Batcher splits selected rows into bounded parts and reassembles them on
// the applying side.
type Batcher struct {
	batchSize    int
	directory    string
	serializer   Serializer
	interceptors Interceptors
	logger       *logger.Logger
}

// NewBatcher wires a batcher from engine options.
func NewBatcher(opts Options, log *logger.Logger) *Batcher {
	return &Batcher{
		batchSize:    opts.batchSize(),
		directory:    opts.BatchesDirectory,
		serializer:   opts.serializer(),
		interceptors: opts.Interceptors,
		logger:       log,
	}
}

// AppendRows encodes rows for one table into ≤batchSize parts and appends
// them to batch. Tables must be appended in dependency order; part indexes
// continue from the table's existing parts.
func (b *Batcher) AppendRows(ctx context.Context, batch *models.BatchInfo, table string, rows []models.SyncRow) error {
	index := len(batch.TableParts(table))

	for start := 0; start < len(rows); start += b.batchSize {
		end := start + b.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		chunk := make([]models.SyncRow, end-start)
		copy(chunk, rows[start:end])
		for i := range chunk {
			b.interceptors.serializingRow(ctx, table, &chunk[i])
		}

		payload, err := b.serializer.Serialize(chunk)
		if err != nil {
			return err
		}

		part := models.BatchPartInfo{
			Table:    table,
			Index:    index,
			RowCount: len(chunk),
		}
		index++

		if b.directory != "" && len(payload) > spillThreshold {
			part.FileName, err = b.spill(batch, payload)
			if err != nil {
				return err
			}
		} else {
			part.Payload = payload
		}

		batch.Parts = append(batch.Parts, part)
	}

	return nil
}

// ReadPart decodes one part back into rows, reading a spilled payload from
// the batch directory when needed.
func (b *Batcher) ReadPart(ctx context.Context, batch *models.BatchInfo, part models.BatchPartInfo) ([]models.SyncRow, error) {
	payload := part.Payload
	if part.FileName != "" {
		data, err := os.ReadFile(filepath.Join(batch.Directory, part.FileName))
		if err != nil {
			return nil, fmt.Errorf("read batch part file: %w", err)
		}
		payload = data
	}

	rows, err := b.serializer.Deserialize(payload)
	if err != nil {
		return nil, err
	}

	for i := range rows {
		b.interceptors.deserializingRow(ctx, part.Table, &rows[i])
	}
	return rows, nil
}

// Cleanup removes spilled part files. Failures are logged and swallowed:
// leftover transient files never fail a completed session.
func (b *Batcher) Cleanup(batch *models.BatchInfo) {
	if batch == nil || batch.Directory == "" {
		return
	}
	for _, part := range batch.Parts {
		if part.FileName == "" {
			continue
		}
		if err := os.Remove(filepath.Join(batch.Directory, part.FileName)); err != nil && !os.IsNotExist(err) {
			b.logger.Warn().Err(err).
				Str("func", "*Batcher.Cleanup").
				Str("file", part.FileName).
				Msg("failed to remove batch part file")
		}
	}
}

// spill writes payload under the batch directory and returns the relative
// file name. The directory is created on first use and recorded on batch.
func (b *Batcher) spill(batch *models.BatchInfo, payload []byte) (string, error) {
	if batch.Directory == "" {
		batch.Directory = b.directory
	}
	if err := os.MkdirAll(batch.Directory, 0o750); err != nil {
		return "", fmt.Errorf("create batch directory: %w", err)
	}

	name := uuid.NewString() + ".part"
	if err := os.WriteFile(filepath.Join(batch.Directory, name), payload, 0o600); err != nil {
		return "", fmt.Errorf("write batch part file: %w", err)
	}
	return name, nil
}
