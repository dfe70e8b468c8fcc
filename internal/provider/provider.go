// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package provider defines the backend capability consumed by the sync
// engine. The engine never sees backend-specific SQL: everything it needs
// from a store — schema introspection, tracking infrastructure, change
// selection, row application, scope metadata — goes through the Provider
// interface, implemented once per backend under provider/postgres and
// provider/sqlite.
package provider

import (
	"context"

	"github.com/MKhiriev/go-row-sync/models"
)

//go:generate mockgen -source=provider.go -destination=../mock/provider_mock.go -package=mock

// TriggerKind names one of the three change-capture triggers installed per
// synced table.
type TriggerKind string

const (
	TriggerInsert TriggerKind = "insert"
	TriggerUpdate TriggerKind = "update"
	TriggerDelete TriggerKind = "delete"
)

// ApplyMode selects the bulk operation performed by BulkApplyRows.
type ApplyMode string

const (
	// ApplyInsert inserts rows assumed absent (snapshot import path).
	ApplyInsert ApplyMode = "insert"

	// ApplyUpdate upserts rows regardless of presence.
	ApplyUpdate ApplyMode = "update"

	// ApplyDelete removes rows and records tombstones.
	ApplyDelete ApplyMode = "delete"
)

// TrackingRow is the tracking-metadata record the apply engine compares
// incoming changes against.
type TrackingRow struct {
	// Version is the logical clock value of the row's last recorded
	// change.
	Version int64

	// Tombstone marks the record as a delete.
	Tombstone bool

	// OriginID identifies the peer whose apply produced the record;
	// empty for changes made locally by the application.
	OriginID string
}

// Factory opens session-scoped Providers against one backend store.
//
// A Factory owns the connection pool; each Open pins one connection for the
// lifetime of the returned Provider so session-level settings (constraint
// toggling, pragmas) cannot leak across sessions. Close the Provider to
// release the connection, Close the Factory to tear the pool down.
type Factory interface {
	// Name identifies the backend variant ("postgres", "sqlite").
	Name() string

	// Open acquires one connection and returns a Provider bound to it.
	Open(ctx context.Context) (Provider, error)

	// Close releases the underlying pool.
	Close() error
}

// Provider is the per-backend capability the engine composes. All methods
// take a context and are suspension points; implementations must honor
// cancellation promptly.
type Provider interface {
	// Name identifies the backend variant.
	Name() string

	// Close releases the pinned connection back to the factory's pool.
	Close() error

	// Classifier reports whether a failed operation is worth retrying.
	Classifier() ErrorClassificator

	// --- scope metadata -------------------------------------------------

	// EnsureScopeTables creates the scope metadata tables when absent.
	EnsureScopeTables(ctx context.Context) error

	// ScopeTableExists reports whether the scope metadata tables exist.
	ScopeTableExists(ctx context.Context) (bool, error)

	// GetScopeInfo loads a scope record; ErrScopeNotFound when the scope
	// was never saved.
	GetScopeInfo(ctx context.Context, scopeName string) (models.ScopeInfo, error)

	// SaveScopeInfo upserts a scope record.
	SaveScopeInfo(ctx context.Context, scope models.ScopeInfo) error

	// GetScopeClientInfo loads one replica's sync history record;
	// ErrScopeNotFound when absent.
	GetScopeClientInfo(ctx context.Context, scopeName, clientID string) (models.ScopeClientInfo, error)

	// SaveScopeClientInfo upserts a replica's sync history record.
	SaveScopeClientInfo(ctx context.Context, info models.ScopeClientInfo) error

	// --- schema ---------------------------------------------------------

	// IntrospectSchema resolves the setup against the live schema,
	// returning the selected tables with their column subsets, primary
	// keys and foreign keys. Fails with ErrMissingTable or
	// ErrMissingColumn on a setup entry the schema cannot satisfy, and
	// with ErrMissingPrimaryKey for a table without a usable key.
	IntrospectSchema(ctx context.Context, setup models.SyncSetup) ([]models.TableSchema, error)

	// --- tracking infrastructure ---------------------------------------

	CreateTrackingTable(ctx context.Context, table models.TableSchema) error
	DropTrackingTable(ctx context.Context, table models.TableSchema) error
	ExistsTrackingTable(ctx context.Context, tableName string) (bool, error)

	CreateTriggers(ctx context.Context, table models.TableSchema) error
	DropTriggers(ctx context.Context, table models.TableSchema) error
	ExistsTrigger(ctx context.Context, tableName string, kind TriggerKind) (bool, error)

	CreateBulkProcedures(ctx context.Context, table models.TableSchema) error
	DropBulkProcedures(ctx context.Context, table models.TableSchema) error
	ExistsBulkProcedure(ctx context.Context, tableName string) (bool, error)

	// --- change selection and application -------------------------------

	// CurrentWatermark returns the store's logical change counter.
	CurrentWatermark(ctx context.Context) (int64, error)

	// SelectChangedRows returns the rows of table whose tracking version
	// is strictly greater than since, excluding rows whose last change
	// originated from excludeOrigin (so a peer never receives its own
	// changes back). An empty excludeOrigin disables the origin filter.
	// Tombstones carry primary-key values only.
	SelectChangedRows(ctx context.Context, table models.TableSchema, since int64, excludeOrigin string) ([]models.SyncRow, error)

	// SelectAllRows returns the full live row set of table, used for
	// snapshot creation.
	SelectAllRows(ctx context.Context, table models.TableSchema) ([]models.SyncRow, error)

	// GetTrackingRow loads the tracking record for row's primary key.
	GetTrackingRow(ctx context.Context, table models.TableSchema, row models.SyncRow) (TrackingRow, bool, error)

	// ApplyRow writes one incoming row (upsert or delete per row state),
	// stamps the tracking record with the row's version and origin, and
	// advances the local change counter past the row's version.
	ApplyRow(ctx context.Context, table models.TableSchema, row models.SyncRow, origin string) error

	// BulkApplyRows applies a homogeneous row slice in one transaction.
	// Returns the number of rows applied.
	BulkApplyRows(ctx context.Context, table models.TableSchema, rows []models.SyncRow, mode ApplyMode, origin string) (int, error)

	// DeleteMetadata removes tombstone tracking records of table at or
	// below the given watermark, returning how many were removed. Live-row
	// tracking records are kept: they are what a full download selects
	// from. Clients whose acknowledged watermark predates a cleanup may
	// have missed the pruned tombstones and become out of date.
	DeleteMetadata(ctx context.Context, table models.TableSchema, before int64) (int64, error)

	// WipeData removes all rows and tracking records of the given tables
	// (reinitialize path). Tables are wiped children-first.
	WipeData(ctx context.Context, tables []models.TableSchema) error

	// DisableConstraints suspends foreign-key enforcement on this
	// provider's connection; EnableConstraints restores it.
	DisableConstraints(ctx context.Context) error
	EnableConstraints(ctx context.Context) error
}
