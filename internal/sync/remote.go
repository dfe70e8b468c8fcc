// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"

	"github.com/MKhiriev/go-row-sync/models"
)

// ServerOriginID is the origin stamp for changes a client applies on behalf
// of the hub. Hub-side the origin is the client id, so the two sides never
// echo each other's rows back.
const ServerOriginID = "server"

//go:generate mockgen -source=remote.go -destination=../mock/remote_orchestrator.go -package=mock

// RemoteOrchestrator is the hub as seen from a client: scope resolution and
// the apply-then-select round trip. The in-process [Coordinator] implements
// it directly; adapter.RemoteClient implements it over HTTP.
type RemoteOrchestrator interface {
	// EnsureScope resolves (and on first use provisions) a scope on the
	// hub, returning the authoritative schema snapshot.
	EnsureScope(ctx context.Context, req models.EnsureScopeRequest) (models.EnsureScopeResponse, error)

	// SyncChanges applies the client's outgoing batch on the hub, then
	// selects everything the client has not seen yet. Retrying with the
	// same ClientWatermark is idempotent.
	SyncChanges(ctx context.Context, req models.SyncChangesRequest) (models.SyncChangesResponse, error)

	// GetSnapshot fetches the retained snapshot for scope with part
	// payloads inlined; ErrSnapshotNotFound when none exists.
	GetSnapshot(ctx context.Context, scope string) (*models.SnapshotInfo, error)
}
