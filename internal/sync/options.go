// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"github.com/MKhiriev/go-row-sync/internal/config"
	"github.com/MKhiriev/go-row-sync/models"
)

// Options tunes a single orchestrator. Zero values fall back to the
// defaults below, so `sync.Options{}` is usable as-is in tests.
type Options struct {
	// BatchSize caps the rows per batch part. Values below 1 mean
	// DefaultBatchSize.
	BatchSize int

	// BatchesDirectory receives spilled batch part files. Empty keeps
	// every part in memory.
	BatchesDirectory string

	// SnapshotsDirectory is where the hub retains scope snapshots.
	SnapshotsDirectory string

	// ConflictPolicy settles conflicts without a custom hook.
	// Defaults to ServerWins.
	ConflictPolicy models.ConflictResolution

	// DisableConstraintsOnApplyChanges suspends foreign-key enforcement
	// for the duration of a batch apply.
	DisableConstraintsOnApplyChanges bool

	// Serializer overrides the batch part codec. Nil means plain JSON.
	Serializer Serializer

	// Interceptors receive session progress callbacks; all optional.
	Interceptors Interceptors
}

// DefaultBatchSize bounds batch parts when the options leave it unset.
const DefaultBatchSize = 500

func (o Options) batchSize() int {
	if o.BatchSize < 1 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

func (o Options) conflictPolicy() models.ConflictResolution {
	if o.ConflictPolicy == "" {
		return models.ServerWins
	}
	return o.ConflictPolicy
}

func (o Options) serializer() Serializer {
	if o.Serializer == nil {
		return JSONSerializer{}
	}
	return o.Serializer
}

// OptionsFromConfig maps the process configuration onto engine options.
func OptionsFromConfig(cfg config.Sync) Options {
	return Options{
		BatchSize:                        cfg.BatchSize,
		BatchesDirectory:                 cfg.BatchesDirectory,
		SnapshotsDirectory:               cfg.SnapshotsDirectory,
		ConflictPolicy:                   models.ConflictResolution(cfg.ConflictResolutionPolicy),
		DisableConstraintsOnApplyChanges: cfg.DisableConstraintsOnApplyChanges,
	}
}
