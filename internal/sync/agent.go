// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
	"github.com/google/uuid"
)

// Agent drives one replica against the hub. A session walks
// Begin → ScopeResolution → Provisioning → Selection → Transfer → Apply →
// WatermarkCommit → End; any error aborts the session and the next run
// resumes from the last committed watermarks.
type Agent struct {
	local   *LocalOrchestrator
	remote  RemoteOrchestrator
	options Options
	logger  *logger.Logger

	scopeName string
	clientID  string
	setup     models.SyncSetup
}

// NewAgent wires an agent for one scope on one replica.
func NewAgent(local *LocalOrchestrator, remote RemoteOrchestrator, scopeName, clientID string, setup models.SyncSetup, opts Options, log *logger.Logger) *Agent {
	return &Agent{
		local:     local,
		remote:    remote,
		options:   opts,
		logger:    log,
		scopeName: scopeName,
		clientID:  clientID,
		setup:     setup,
	}
}

// Synchronize runs one full session and returns its result. The context
// bounds the whole session; cancellation aborts the current provider call
// and surfaces through the phase error.
func (a *Agent) Synchronize(ctx context.Context, syncType models.SyncType) (*models.SyncResult, error) {
	if syncType == "" {
		syncType = models.SyncTypeNormal
	}

	sessionID := uuid.NewString()
	log := &logger.Logger{Logger: a.logger.With().
		Str("session_id", sessionID).
		Str("scope", a.scopeName).
		Logger()}
	ctx = log.WithContext(ctx)
	result := models.NewSyncResult(sessionID, a.scopeName, syncType)

	log.Info().
		Str("func", "*Agent.Synchronize").
		Str("sync_type", string(syncType)).
		Msg("session started")

	p, err := a.local.Open(ctx)
	if err != nil {
		return result, err
	}
	defer p.Close() //nolint:errcheck

	// ScopeResolution: the hub's answer is authoritative for schema and
	// snapshot availability.
	hubResp, err := a.remote.EnsureScope(ctx, models.EnsureScopeRequest{
		ScopeName: a.scopeName,
		ClientID:  a.clientID,
		Setup:     a.setup,
	})
	if err != nil {
		return result, err
	}

	scope, _, err := a.local.EnsureScope(ctx, p, hubResp.Scope)
	if err != nil {
		return result, err
	}

	if syncType == models.SyncTypeReinitialize {
		if scope, err = a.local.Reinitialize(ctx, p, scope); err != nil {
			return result, err
		}
	}

	// Snapshot bootstrap saves a new client the full incremental replay.
	if scope.IsNewClient() && hubResp.SnapshotAvailable && syncType == models.SyncTypeNormal {
		if scope, err = a.bootstrapFromSnapshot(ctx, p, scope, result); err != nil {
			return result, err
		}
	}

	uploadAllowed := syncType != models.SyncTypeReinitialize
	scope, err = a.roundTrip(ctx, p, scope, syncType, uploadAllowed, result)

	if err != nil && errors.Is(err, ErrOutOfDate) {
		action := a.options.Interceptors.outdated(ctx, a.scopeName, scope.LastServerWatermark, 0)
		log.Warn().
			Str("func", "*Agent.Synchronize").
			Str("action", string(action)).
			Msg("client is outdated")

		switch action {
		case models.OutdatedReinitialize:
			if scope, err = a.local.Reinitialize(ctx, p, scope); err == nil {
				scope, err = a.roundTrip(ctx, p, scope, models.SyncTypeReinitialize, false, result)
			}
		case models.OutdatedReinitializeWithUpload:
			scope, err = a.roundTrip(ctx, p, scope, models.SyncTypeReinitializeWithUpload, true, result)
		}
	}

	result.EndTime = time.Now()
	if err != nil {
		log.Err(err).Str("func", "*Agent.Synchronize").Msg("session failed")
		return result, err
	}

	log.Info().
		Str("func", "*Agent.Synchronize").
		Int("uploaded", result.TotalChangesUploadedToServer).
		Int("downloaded", result.TotalChangesDownloaded).
		Int("applied_on_client", result.TotalChangesAppliedOnClient).
		Int("applied_on_server", result.TotalChangesAppliedOnServer).
		Int("conflicts", result.TotalResolvedConflicts).
		Dur("duration", result.Duration()).
		Msg("session completed")

	return result, nil
}

// roundTrip performs one apply-then-select exchange with the hub followed
// by the local apply and watermark commit.
func (a *Agent) roundTrip(ctx context.Context, p provider.Provider, scope models.ScopeInfo, syncType models.SyncType, uploadAllowed bool, result *models.SyncResult) (models.ScopeInfo, error) {
	reinitialize := syncType != models.SyncTypeNormal

	var upload *models.BatchInfo
	var since int64
	if uploadAllowed {
		batch, err := a.local.SelectUpload(ctx, p, scope)
		if err != nil {
			return scope, err
		}
		upload = batch
		since = batch.Watermark
		result.TotalChangesUploadedToServer += upload.RowCount()
		for _, tableName := range upload.Tables() {
			for _, part := range upload.TableParts(tableName) {
				result.TableResult(tableName).ChangesUploaded += part.RowCount
			}
		}
	} else {
		watermark, err := p.CurrentWatermark(ctx)
		if err != nil {
			return scope, wrapPhase(PhaseSelection, scope.Name, err)
		}
		since = watermark
	}

	clientWatermark := scope.LastServerWatermark
	if reinitialize {
		// Watermark zero asks for the full dataset and bypasses the
		// retained-history check.
		clientWatermark = 0
	}

	resp, err := a.remote.SyncChanges(ctx, models.SyncChangesRequest{
		ScopeName:        a.scopeName,
		ClientID:         a.clientID,
		SetupFingerprint: scope.Setup.Fingerprint(),
		ClientWatermark:  clientWatermark,
		Batch:            upload,
		Reinitialize:     reinitialize,
	})
	if err != nil {
		return scope, err
	}

	result.TotalChangesAppliedOnServer += resp.AppliedOnServer
	result.TotalAlreadyApplied += resp.AlreadyAppliedOnServer
	result.TotalResolvedConflicts += resp.ConflictsResolvedOnServer
	for _, tr := range resp.TableApplyResults {
		entry := result.TableResult(tr.Table)
		entry.ChangesAppliedOnServer += tr.Applied
		entry.ResolvedConflicts += tr.ResolvedConflicts
	}
	for _, stat := range resp.Stats {
		result.TableResult(stat.Table).ChangesDownloaded += stat.RowCount
	}
	result.TotalChangesDownloaded += resp.Batch.RowCount()

	if syncType == models.SyncTypeReinitializeWithUpload {
		// Pending changes are on the hub now; restart clean before the
		// full download lands.
		if scope, err = a.local.Reinitialize(ctx, p, scope); err != nil {
			return scope, err
		}
		since = 0
	}

	applyResult, err := a.local.ApplyDownload(ctx, p, scope, resp.Batch, since)
	if err != nil {
		return scope, err
	}

	result.TotalChangesAppliedOnClient += applyResult.TotalApplied()
	result.TotalAlreadyApplied += applyResult.TotalAlreadyApplied()
	result.TotalResolvedConflicts += applyResult.TotalResolvedConflicts()
	for _, tr := range applyResult.Tables {
		entry := result.TableResult(tr.Table)
		entry.ChangesAppliedOnClient += tr.Applied
		entry.ResolvedConflicts += tr.ResolvedConflicts
		entry.ChangesFailed += tr.Skipped
	}

	// The upload leg's rows are on the hub; everything at or below the
	// upload watermark is settled. Committed only now, after the download
	// applied completely.
	localWatermark := since
	if upload != nil {
		localWatermark = upload.Watermark
	}
	scope.LastSync = timePtr(time.Now())
	scope, err = a.local.CommitWatermarks(ctx, p, scope, localWatermark, resp.ServerWatermark)
	if err != nil {
		return scope, err
	}

	NewBatcher(a.options, a.logger).Cleanup(upload)
	return scope, nil
}

// bootstrapFromSnapshot fetches and bulk-loads the hub's retained snapshot,
// then positions the watermark at the snapshot's so the following round
// trip only replays changes made after it.
func (a *Agent) bootstrapFromSnapshot(ctx context.Context, p provider.Provider, scope models.ScopeInfo, result *models.SyncResult) (models.ScopeInfo, error) {
	info, err := a.remote.GetSnapshot(ctx, a.scopeName)
	if errors.Is(err, ErrSnapshotNotFound) {
		return scope, nil
	}
	if err != nil {
		return scope, err
	}

	applied, err := a.local.ApplySnapshot(ctx, p, scope, info)
	if err != nil {
		return scope, err
	}

	scope, err = a.local.CommitWatermarks(ctx, p, scope, scope.LastLocalWatermark, info.Watermark)
	if err != nil {
		return scope, err
	}

	result.SnapshotApplied = true
	result.TotalChangesDownloaded += applied
	result.TotalChangesAppliedOnClient += applied

	logger.FromContext(ctx).Info().
		Str("func", "*Agent.bootstrapFromSnapshot").
		Int("rows", applied).
		Int64("watermark", info.Watermark).
		Msg("bootstrapped from snapshot")

	return scope, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
