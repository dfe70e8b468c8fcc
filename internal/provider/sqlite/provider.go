// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

const (
	// SQLite has no sequences; the logical clock is a one-row counter table
	// incremented by the change-capture triggers.
	createScopeTables = `
	CREATE TABLE IF NOT EXISTS sync_version_seq (
		id  INTEGER PRIMARY KEY CHECK (id = 1),
		seq INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO sync_version_seq (id, seq) VALUES (1, 0);

	CREATE TABLE IF NOT EXISTS sync_scope_info (
		name                   TEXT PRIMARY KEY,
		schema_snapshot        TEXT NOT NULL,
		setup                  TEXT NOT NULL,
		version                INTEGER NOT NULL DEFAULT 1,
		last_local_watermark   INTEGER NOT NULL DEFAULT 0,
		last_server_watermark  INTEGER NOT NULL DEFAULT 0,
		last_cleanup_watermark INTEGER NOT NULL DEFAULT 0,
		last_sync              TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sync_scope_clients (
		scope_name            TEXT NOT NULL,
		client_id             TEXT NOT NULL,
		last_sync_watermark   INTEGER NOT NULL DEFAULT 0,
		last_sync             TIMESTAMP NOT NULL,
		last_sync_duration_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (scope_name, client_id)
	);

	CREATE TABLE IF NOT EXISTS sync_bulk_statements (
		table_name TEXT PRIMARY KEY,
		insert_sql TEXT NOT NULL,
		update_sql TEXT NOT NULL,
		delete_sql TEXT NOT NULL
	);`

	scopeTableExists = `SELECT EXISTS (
		SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'sync_scope_info'
	);`

	getScopeInfo = `SELECT name, schema_snapshot, setup, version,
		last_local_watermark, last_server_watermark, last_cleanup_watermark, last_sync
	FROM sync_scope_info
	WHERE name = ?;`

	saveScopeInfo = `INSERT INTO sync_scope_info (
			name, schema_snapshot, setup, version,
			last_local_watermark, last_server_watermark, last_cleanup_watermark, last_sync
		) VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET
			schema_snapshot        = excluded.schema_snapshot,
			setup                  = excluded.setup,
			version                = excluded.version,
			last_local_watermark   = excluded.last_local_watermark,
			last_server_watermark  = excluded.last_server_watermark,
			last_cleanup_watermark = excluded.last_cleanup_watermark,
			last_sync              = CURRENT_TIMESTAMP;`

	getScopeClientInfo = `SELECT scope_name, client_id, last_sync_watermark, last_sync, last_sync_duration_ms
	FROM sync_scope_clients
	WHERE scope_name = ? AND client_id = ?;`

	saveScopeClientInfo = `INSERT INTO sync_scope_clients (
			scope_name, client_id, last_sync_watermark, last_sync, last_sync_duration_ms
		) VALUES (?, ?, ?, CURRENT_TIMESTAMP, ?)
		ON CONFLICT (scope_name, client_id) DO UPDATE SET
			last_sync_watermark   = excluded.last_sync_watermark,
			last_sync             = CURRENT_TIMESTAMP,
			last_sync_duration_ms = excluded.last_sync_duration_ms;`

	currentWatermark = `SELECT COALESCE((SELECT seq FROM sync_version_seq WHERE id = 1), 0);`

	advanceWatermark = `INSERT INTO sync_version_seq (id, seq) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET seq = MAX(seq, excluded.seq);`
)

// liteProvider is the SQLite-backed implementation of [provider.Provider],
// bound to one pinned connection for its whole lifetime.
type liteProvider struct {
	conn       *sql.Conn
	logger     *logger.Logger
	classifier provider.ErrorClassificator
}

// Name implements [provider.Provider].
func (p *liteProvider) Name() string { return "sqlite" }

// Close implements [provider.Provider].
func (p *liteProvider) Close() error {
	return p.conn.Close()
}

// Classifier implements [provider.Provider].
func (p *liteProvider) Classifier() provider.ErrorClassificator {
	return p.classifier
}

// EnsureScopeTables implements [provider.Provider].
func (p *liteProvider) EnsureScopeTables(ctx context.Context) error {
	if _, err := p.conn.ExecContext(ctx, createScopeTables); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "*liteProvider.EnsureScopeTables").
			Msg("failed to create scope metadata tables")
		return p.wrap(err)
	}
	return nil
}

// ScopeTableExists implements [provider.Provider].
func (p *liteProvider) ScopeTableExists(ctx context.Context) (bool, error) {
	var exists bool
	if err := p.conn.QueryRowContext(ctx, scopeTableExists).Scan(&exists); err != nil {
		return false, p.wrap(err)
	}
	return exists, nil
}

// GetScopeInfo implements [provider.Provider].
func (p *liteProvider) GetScopeInfo(ctx context.Context, scopeName string) (models.ScopeInfo, error) {
	log := logger.FromContext(ctx)

	var scope models.ScopeInfo
	var schemaJSON, setupJSON []byte
	var lastSync sql.NullTime

	err := p.conn.QueryRowContext(ctx, getScopeInfo, scopeName).Scan(
		&scope.Name,
		&schemaJSON,
		&setupJSON,
		&scope.Version,
		&scope.LastLocalWatermark,
		&scope.LastServerWatermark,
		&scope.LastCleanupWatermark,
		&lastSync,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScopeInfo{}, fmt.Errorf("%w: %q", provider.ErrScopeNotFound, scopeName)
	}
	if err != nil {
		log.Err(err).
			Str("func", "*liteProvider.GetScopeInfo").
			Str("scope", scopeName).
			Msg("failed to load scope info")
		return models.ScopeInfo{}, p.wrap(err)
	}

	if err = json.Unmarshal(schemaJSON, &scope.Schema); err != nil {
		return models.ScopeInfo{}, fmt.Errorf("decode scope schema snapshot: %w", err)
	}
	if err = json.Unmarshal(setupJSON, &scope.Setup); err != nil {
		return models.ScopeInfo{}, fmt.Errorf("decode scope setup: %w", err)
	}
	if lastSync.Valid {
		scope.LastSync = &lastSync.Time
	}

	return scope, nil
}

// SaveScopeInfo implements [provider.Provider].
func (p *liteProvider) SaveScopeInfo(ctx context.Context, scope models.ScopeInfo) error {
	log := logger.FromContext(ctx)

	schemaJSON, err := json.Marshal(scope.Schema)
	if err != nil {
		return fmt.Errorf("encode scope schema snapshot: %w", err)
	}
	setupJSON, err := json.Marshal(scope.Setup)
	if err != nil {
		return fmt.Errorf("encode scope setup: %w", err)
	}

	_, err = p.conn.ExecContext(ctx, saveScopeInfo,
		scope.Name,
		schemaJSON,
		setupJSON,
		scope.Version,
		scope.LastLocalWatermark,
		scope.LastServerWatermark,
		scope.LastCleanupWatermark,
	)
	if err != nil {
		log.Err(err).
			Str("func", "*liteProvider.SaveScopeInfo").
			Str("scope", scope.Name).
			Msg("failed to save scope info")
		return p.wrap(err)
	}

	return nil
}

// GetScopeClientInfo implements [provider.Provider].
func (p *liteProvider) GetScopeClientInfo(ctx context.Context, scopeName, clientID string) (models.ScopeClientInfo, error) {
	var info models.ScopeClientInfo
	var durationMs int64

	err := p.conn.QueryRowContext(ctx, getScopeClientInfo, scopeName, clientID).Scan(
		&info.ScopeName,
		&info.ClientID,
		&info.LastSyncWatermark,
		&info.LastSync,
		&durationMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScopeClientInfo{}, fmt.Errorf("%w: scope %q client %q", provider.ErrScopeNotFound, scopeName, clientID)
	}
	if err != nil {
		return models.ScopeClientInfo{}, p.wrap(err)
	}

	info.LastSyncDuration = time.Duration(durationMs) * time.Millisecond
	return info, nil
}

// SaveScopeClientInfo implements [provider.Provider].
func (p *liteProvider) SaveScopeClientInfo(ctx context.Context, info models.ScopeClientInfo) error {
	_, err := p.conn.ExecContext(ctx, saveScopeClientInfo,
		info.ScopeName,
		info.ClientID,
		info.LastSyncWatermark,
		info.LastSyncDuration.Milliseconds(),
	)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "*liteProvider.SaveScopeClientInfo").
			Str("scope", info.ScopeName).
			Str("client_id", info.ClientID).
			Msg("failed to save scope client info")
		return p.wrap(err)
	}
	return nil
}

// CurrentWatermark implements [provider.Provider].
func (p *liteProvider) CurrentWatermark(ctx context.Context) (int64, error) {
	var watermark int64
	if err := p.conn.QueryRowContext(ctx, currentWatermark).Scan(&watermark); err != nil {
		return 0, p.wrap(err)
	}
	return watermark, nil
}

// DisableConstraints implements [provider.Provider]. The pragma is a no-op
// inside an open transaction, so it runs on the pinned connection before the
// apply transactions start.
func (p *liteProvider) DisableConstraints(ctx context.Context) error {
	if _, err := p.conn.ExecContext(ctx, `PRAGMA foreign_keys = OFF;`); err != nil {
		return p.wrap(err)
	}
	return nil
}

// EnableConstraints implements [provider.Provider].
func (p *liteProvider) EnableConstraints(ctx context.Context) error {
	if _, err := p.conn.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		return p.wrap(err)
	}
	return nil
}

// wrap classifies err and tags transient faults as connection failures so
// the retry policy can recognize them after wrapping.
func (p *liteProvider) wrap(err error) error {
	if err == nil {
		return nil
	}
	if p.classifier.Classify(err) == provider.Retryable {
		return fmt.Errorf("%w: %w", provider.ErrConnectionFailure, err)
	}
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: %w", provider.ErrConstraintViolation, err)
	}
	return fmt.Errorf("%w: %w", provider.ErrExecutingQuery, err)
}

// quoteIdent double-quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualifiedName renders the table identifier. SQLite attaches everything to
// the main database, so the setup's schema name is ignored.
func qualifiedName(table models.TableSchema) string {
	return quoteIdent(table.Name)
}

// trackingTableName is the tracking-table identifier for a synced table.
func trackingTableName(tableName string) string {
	return "sync_" + tableName + "_tracking"
}
