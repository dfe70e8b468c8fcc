// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

// Coordinator is the hub side of the protocol: it owns the authoritative
// scope descriptions and serves the apply-then-select round trip. One
// coordinator serves many clients; every call opens its own session-pinned
// provider so concurrent clients never share a connection.
type Coordinator struct {
	factory provider.Factory
	options Options
	logger  *logger.Logger
}

// NewCoordinator builds the hub-side orchestrator over a provider factory.
func NewCoordinator(factory provider.Factory, opts Options, log *logger.Logger) *Coordinator {
	return &Coordinator{factory: factory, options: opts, logger: log}
}

// EnsureScope implements [RemoteOrchestrator]. On first use it validates
// the requested setup against the live schema and provisions the full
// tracking infrastructure; afterwards it verifies the stored setup still
// matches and returns the authoritative scope description.
func (c *Coordinator) EnsureScope(ctx context.Context, req models.EnsureScopeRequest) (models.EnsureScopeResponse, error) {
	log := logger.FromContext(ctx)

	p, err := c.factory.Open(ctx)
	if err != nil {
		return models.EnsureScopeResponse{}, wrapPhase(PhaseScopeResolution, req.ScopeName, err)
	}
	defer p.Close() //nolint:errcheck

	if err = p.EnsureScopeTables(ctx); err != nil {
		return models.EnsureScopeResponse{}, wrapPhase(PhaseScopeResolution, req.ScopeName, err)
	}

	scope, err := p.GetScopeInfo(ctx, req.ScopeName)
	switch {
	case errors.Is(err, provider.ErrScopeNotFound):
		scope, err = c.provisionScope(ctx, p, req)
		if err != nil {
			return models.EnsureScopeResponse{}, err
		}
		log.Info().
			Str("func", "*Coordinator.EnsureScope").
			Str("scope", req.ScopeName).
			Int("tables", len(scope.Schema)).
			Msg("scope provisioned")

	case err != nil:
		return models.EnsureScopeResponse{}, wrapPhase(PhaseScopeResolution, req.ScopeName, err)

	default:
		if req.Setup.HasTables() && scope.Setup.Fingerprint() != req.Setup.Fingerprint() {
			return models.EnsureScopeResponse{}, wrapPhase(PhaseScopeResolution, req.ScopeName,
				fmt.Errorf("%w: scope is provisioned with a different setup", ErrSetupMismatch))
		}
	}

	resp := models.EnsureScopeResponse{Scope: scope}
	if info, snapErr := NewSnapshotManager(p, c.options, c.logger).Load(req.ScopeName); snapErr == nil {
		resp.SnapshotAvailable = true
		resp.SnapshotWatermark = info.Watermark
	}

	return resp, nil
}

func (c *Coordinator) provisionScope(ctx context.Context, p provider.Provider, req models.EnsureScopeRequest) (models.ScopeInfo, error) {
	if !req.Setup.HasTables() {
		return models.ScopeInfo{}, wrapPhase(PhaseScopeResolution, req.ScopeName,
			fmt.Errorf("%w: no setup to provision from", ErrMissingScope))
	}

	schema, err := NewProvisioner(p, c.logger).Provision(ctx, req.Setup, ProvisionAll)
	if err != nil {
		return models.ScopeInfo{}, err
	}

	scope := models.ScopeInfo{
		Name:    req.ScopeName,
		Schema:  schema,
		Setup:   req.Setup,
		Version: 1,
	}
	if err = p.SaveScopeInfo(ctx, scope); err != nil {
		return models.ScopeInfo{}, wrapPhase(PhaseScopeResolution, req.ScopeName, err)
	}
	return scope, nil
}

// SyncChanges implements [RemoteOrchestrator]. The upload is applied before
// the download selection so a client's own just-uploaded rows fall inside
// the returned watermark and are excluded by their origin stamp, never
// echoed back.
func (c *Coordinator) SyncChanges(ctx context.Context, req models.SyncChangesRequest) (models.SyncChangesResponse, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	p, err := c.factory.Open(ctx)
	if err != nil {
		return models.SyncChangesResponse{}, wrapPhase(PhaseTransfer, req.ScopeName, err)
	}
	defer p.Close() //nolint:errcheck

	scope, err := p.GetScopeInfo(ctx, req.ScopeName)
	if errors.Is(err, provider.ErrScopeNotFound) {
		return models.SyncChangesResponse{}, wrapPhase(PhaseTransfer, req.ScopeName,
			fmt.Errorf("%w: %w", ErrMissingScope, err))
	}
	if err != nil {
		return models.SyncChangesResponse{}, wrapPhase(PhaseTransfer, req.ScopeName, err)
	}

	if req.SetupFingerprint != "" && req.SetupFingerprint != scope.Setup.Fingerprint() {
		return models.SyncChangesResponse{}, wrapPhase(PhaseTransfer, req.ScopeName, ErrSetupMismatch)
	}

	// A returning client whose watermark predates the last metadata
	// cleanup would miss tombstones the cleanup removed.
	if req.ClientWatermark > 0 && req.ClientWatermark < scope.LastCleanupWatermark {
		return models.SyncChangesResponse{}, wrapPhase(PhaseTransfer, req.ScopeName,
			fmt.Errorf("%w: client watermark %d, retained history starts at %d",
				ErrOutOfDate, req.ClientWatermark, scope.LastCleanupWatermark))
	}

	batcher := NewBatcher(c.options, c.logger)
	var resp models.SyncChangesResponse

	if req.Batch.HasRows() {
		applier := NewApplier(p, batcher, c.options, false, c.logger)
		applyResult, applyErr := applier.Apply(ctx, req.ScopeName, scope.Schema, req.Batch, req.ClientWatermark, req.ClientID)
		if applyErr != nil {
			return models.SyncChangesResponse{}, applyErr
		}
		resp.AppliedOnServer = applyResult.TotalApplied()
		resp.AlreadyAppliedOnServer = applyResult.TotalAlreadyApplied()
		resp.ConflictsResolvedOnServer = applyResult.TotalResolvedConflicts()
		resp.TableApplyResults = applyResult.Tables
	}

	// A reinitializing client wipes its replica before applying this
	// selection, so its own just-uploaded rows must come back with it
	// instead of being suppressed by their origin stamp.
	excludeOrigin := req.ClientID
	if req.Reinitialize {
		excludeOrigin = ""
	}

	selector := NewSelector(p, batcher, c.logger)
	batch, stats, err := selector.SelectChanges(ctx, scope.Schema, req.ClientWatermark, excludeOrigin, false)
	if err != nil {
		return models.SyncChangesResponse{}, err
	}

	resp.ServerWatermark = batch.Watermark
	resp.Stats = stats
	if batch.HasRows() {
		resp.Batch = batch
	}

	if err = p.SaveScopeClientInfo(ctx, models.ScopeClientInfo{
		ScopeName:         req.ScopeName,
		ClientID:          req.ClientID,
		LastSyncWatermark: batch.Watermark,
		LastSyncDuration:  time.Since(start),
	}); err != nil {
		return models.SyncChangesResponse{}, wrapPhase(PhaseWatermarkCommit, req.ScopeName, err)
	}

	log.Info().
		Str("func", "*Coordinator.SyncChanges").
		Str("scope", req.ScopeName).
		Str("client_id", req.ClientID).
		Int("uploaded_rows", req.Batch.RowCount()).
		Int("applied", resp.AppliedOnServer).
		Int("downloaded_rows", batch.RowCount()).
		Int64("server_watermark", resp.ServerWatermark).
		Msg("sync round trip served")

	return resp, nil
}

// GetSnapshot implements [RemoteOrchestrator]. Part payloads are inlined so
// the result is self-contained off the hub's filesystem.
func (c *Coordinator) GetSnapshot(ctx context.Context, scope string) (*models.SnapshotInfo, error) {
	p, err := c.factory.Open(ctx)
	if err != nil {
		return nil, wrapPhase(PhaseTransfer, scope, err)
	}
	defer p.Close() //nolint:errcheck

	manager := NewSnapshotManager(p, c.options, c.logger)
	info, err := manager.Load(scope)
	if err != nil {
		return nil, err
	}

	for i := range info.Batch.Parts {
		rows, readErr := manager.ReadPart(info, info.Batch.Parts[i])
		if readErr != nil {
			return nil, readErr
		}
		payload, serErr := c.options.serializer().Serialize(rows)
		if serErr != nil {
			return nil, serErr
		}
		info.Batch.Parts[i].Payload = payload
		info.Batch.Parts[i].FileName = ""
	}
	info.Batch.Directory = ""

	return info, nil
}

// CreateSnapshot exports the scope at its current watermark, superseding
// any prior snapshot.
func (c *Coordinator) CreateSnapshot(ctx context.Context, scopeName string) (*models.SnapshotInfo, error) {
	p, err := c.factory.Open(ctx)
	if err != nil {
		return nil, wrapPhase(PhaseSelection, scopeName, err)
	}
	defer p.Close() //nolint:errcheck

	scope, err := p.GetScopeInfo(ctx, scopeName)
	if err != nil {
		return nil, wrapPhase(PhaseSelection, scopeName, err)
	}

	return NewSnapshotManager(p, c.options, c.logger).Create(ctx, scopeName, scope.Schema)
}

// DeleteMetadatas prunes tombstone tracking records at or below the given
// watermark and records it as the scope's cleanup watermark. Clients further
// behind become outdated and must reinitialize.
func (c *Coordinator) DeleteMetadatas(ctx context.Context, scopeName string, before int64) (int64, error) {
	p, err := c.factory.Open(ctx)
	if err != nil {
		return 0, wrapPhase(PhaseEnd, scopeName, err)
	}
	defer p.Close() //nolint:errcheck

	scope, err := p.GetScopeInfo(ctx, scopeName)
	if err != nil {
		return 0, wrapPhase(PhaseEnd, scopeName, err)
	}

	var deleted int64
	for _, table := range scope.Schema {
		n, delErr := p.DeleteMetadata(ctx, table, before)
		if delErr != nil {
			return deleted, wrapTable(PhaseEnd, scopeName, table.Name, "", delErr)
		}
		deleted += n
	}

	scope.LastCleanupWatermark = before
	if err = p.SaveScopeInfo(ctx, scope); err != nil {
		return deleted, wrapPhase(PhaseEnd, scopeName, err)
	}

	c.logger.Info().
		Str("func", "*Coordinator.DeleteMetadatas").
		Str("scope", scopeName).
		Int64("before", before).
		Int64("deleted", deleted).
		Msg("tracking metadata cleaned up")

	return deleted, nil
}
