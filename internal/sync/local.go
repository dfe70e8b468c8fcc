// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"errors"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

// LocalOrchestrator composes the engine parts over the client-side store:
// local scope bookkeeping, provisioning from the hub's schema snapshot,
// outgoing selection, download apply and snapshot bootstrap.
type LocalOrchestrator struct {
	factory provider.Factory
	options Options
	logger  *logger.Logger
}

// NewLocalOrchestrator builds the client-side orchestrator over a provider
// factory.
func NewLocalOrchestrator(factory provider.Factory, opts Options, log *logger.Logger) *LocalOrchestrator {
	return &LocalOrchestrator{factory: factory, options: opts, logger: log}
}

// Open pins one provider session for the duration of a sync session.
func (o *LocalOrchestrator) Open(ctx context.Context) (provider.Provider, error) {
	p, err := o.factory.Open(ctx)
	if err != nil {
		return nil, wrapPhase(PhaseBegin, "", err)
	}
	return p, nil
}

// EnsureScope loads the local scope record, provisioning the replica from
// the hub's authoritative schema snapshot on first use. The returned bool
// reports whether this was the first use.
func (o *LocalOrchestrator) EnsureScope(ctx context.Context, p provider.Provider, hubScope models.ScopeInfo) (models.ScopeInfo, bool, error) {
	if err := p.EnsureScopeTables(ctx); err != nil {
		return models.ScopeInfo{}, false, wrapPhase(PhaseScopeResolution, hubScope.Name, err)
	}

	scope, err := p.GetScopeInfo(ctx, hubScope.Name)
	if err == nil {
		if scope.Setup.Fingerprint() != hubScope.Setup.Fingerprint() {
			return models.ScopeInfo{}, false, wrapPhase(PhaseScopeResolution, hubScope.Name, ErrSetupMismatch)
		}
		return scope, false, nil
	}
	if !errors.Is(err, provider.ErrScopeNotFound) {
		return models.ScopeInfo{}, false, wrapPhase(PhaseScopeResolution, hubScope.Name, err)
	}

	// First use: the replica provisions from the hub's schema, never from
	// its own introspection, so both sides track the same column subset.
	provisioner := NewProvisioner(p, o.logger)
	if err = provisioner.ProvisionFromSchema(ctx, hubScope.Schema, ProvisionAll); err != nil {
		return models.ScopeInfo{}, false, err
	}

	scope = models.ScopeInfo{
		Name:    hubScope.Name,
		Schema:  hubScope.Schema,
		Setup:   hubScope.Setup,
		Version: hubScope.Version,
	}
	if err = p.SaveScopeInfo(ctx, scope); err != nil {
		return models.ScopeInfo{}, false, wrapPhase(PhaseScopeResolution, hubScope.Name, err)
	}

	logger.FromContext(ctx).Info().
		Str("func", "*LocalOrchestrator.EnsureScope").
		Str("scope", scope.Name).
		Int("tables", len(scope.Schema)).
		Msg("replica provisioned")

	return scope, true, nil
}

// SelectUpload packs every local change the hub has not seen yet.
func (o *LocalOrchestrator) SelectUpload(ctx context.Context, p provider.Provider, scope models.ScopeInfo) (*models.BatchInfo, error) {
	batcher := NewBatcher(o.options, o.logger)
	batch, _, err := NewSelector(p, batcher, o.logger).
		SelectChanges(ctx, scope.Schema, scope.LastLocalWatermark, ServerOriginID, true)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// ApplyDownload writes a hub batch into the replica. since is the local
// watermark the upload selection of this session was taken at: rows changed
// locally after it are concurrent with the download and resolve as
// conflicts.
func (o *LocalOrchestrator) ApplyDownload(ctx context.Context, p provider.Provider, scope models.ScopeInfo, batch *models.BatchInfo, since int64) (*models.ApplyResult, error) {
	batcher := NewBatcher(o.options, o.logger)
	applier := NewApplier(p, batcher, o.options, true, o.logger)
	return applier.Apply(ctx, scope.Name, scope.Schema, batch, since, ServerOriginID)
}

// ApplySnapshot bulk-loads a hub snapshot into an empty replica. Rows go in
// parent-first table order; per-row conflict checks are skipped because a
// bootstrapping replica has nothing to conflict with.
func (o *LocalOrchestrator) ApplySnapshot(ctx context.Context, p provider.Provider, scope models.ScopeInfo, info *models.SnapshotInfo) (int, error) {
	serializer := o.options.serializer()

	applied := 0
	for _, table := range scope.Schema {
		for _, part := range info.Batch.TableParts(table.Name) {
			rows, err := serializer.Deserialize(part.Payload)
			if err != nil {
				return applied, wrapTable(PhaseApply, scope.Name, table.Name, "", err)
			}
			n, err := p.BulkApplyRows(ctx, table, rows, provider.ApplyUpdate, ServerOriginID)
			if err != nil {
				return applied, wrapTable(PhaseApply, scope.Name, table.Name, "", err)
			}
			applied += n
		}
	}

	return applied, nil
}

// Reinitialize wipes the replica's synced data and resets the scope
// watermarks so the next round trip is a full download. Local pending
// changes are lost; callers wanting to keep them upload first.
func (o *LocalOrchestrator) Reinitialize(ctx context.Context, p provider.Provider, scope models.ScopeInfo) (models.ScopeInfo, error) {
	if err := p.WipeData(ctx, models.ReverseDependencyOrder(scope.Schema)); err != nil {
		return scope, wrapPhase(PhaseProvisioning, scope.Name, err)
	}

	scope.LastLocalWatermark = 0
	scope.LastServerWatermark = 0
	if err := p.SaveScopeInfo(ctx, scope); err != nil {
		return scope, wrapPhase(PhaseProvisioning, scope.Name, err)
	}

	logger.FromContext(ctx).Info().
		Str("func", "*LocalOrchestrator.Reinitialize").
		Str("scope", scope.Name).
		Msg("replica reinitialized")

	return scope, nil
}

// CommitWatermarks persists the session's progress. Called only after the
// download batch applied completely, so a crash before it re-runs the same
// window and every row resolves as a zero-effect reapply.
func (o *LocalOrchestrator) CommitWatermarks(ctx context.Context, p provider.Provider, scope models.ScopeInfo, localWatermark, serverWatermark int64) (models.ScopeInfo, error) {
	scope.LastLocalWatermark = localWatermark
	scope.LastServerWatermark = serverWatermark
	if err := p.SaveScopeInfo(ctx, scope); err != nil {
		return scope, wrapPhase(PhaseWatermarkCommit, scope.Name, err)
	}
	return scope, nil
}
