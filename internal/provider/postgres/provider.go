// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package postgres

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
	versionSequence = "sync_row_version_seq"

	createScopeTables = `
	CREATE SEQUENCE IF NOT EXISTS sync_row_version_seq;

	CREATE TABLE IF NOT EXISTS sync_scope_info (
		name                   text PRIMARY KEY,
		schema_snapshot        jsonb NOT NULL,
		setup                  jsonb NOT NULL,
		version                bigint NOT NULL DEFAULT 1,
		last_local_watermark   bigint NOT NULL DEFAULT 0,
		last_server_watermark  bigint NOT NULL DEFAULT 0,
		last_cleanup_watermark bigint NOT NULL DEFAULT 0,
		last_sync              timestamptz
	);

	CREATE TABLE IF NOT EXISTS sync_scope_clients (
		scope_name            text NOT NULL,
		client_id             text NOT NULL,
		last_sync_watermark   bigint NOT NULL DEFAULT 0,
		last_sync             timestamptz NOT NULL,
		last_sync_duration_ms bigint NOT NULL DEFAULT 0,
		PRIMARY KEY (scope_name, client_id)
	);

	CREATE TABLE IF NOT EXISTS sync_bulk_statements (
		table_name text PRIMARY KEY,
		insert_sql text NOT NULL,
		update_sql text NOT NULL,
		delete_sql text NOT NULL
	);`

	scopeTableExists = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = 'sync_scope_info'
	);`

	getScopeInfo = `SELECT name, schema_snapshot, setup, version,
		last_local_watermark, last_server_watermark, last_cleanup_watermark, last_sync
	FROM sync_scope_info
	WHERE name = $1;`

	saveScopeInfo = `INSERT INTO sync_scope_info (
			name, schema_snapshot, setup, version,
			last_local_watermark, last_server_watermark, last_cleanup_watermark, last_sync
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (name) DO UPDATE SET
			schema_snapshot        = EXCLUDED.schema_snapshot,
			setup                  = EXCLUDED.setup,
			version                = EXCLUDED.version,
			last_local_watermark   = EXCLUDED.last_local_watermark,
			last_server_watermark  = EXCLUDED.last_server_watermark,
			last_cleanup_watermark = EXCLUDED.last_cleanup_watermark,
			last_sync              = now();`

	getScopeClientInfo = `SELECT scope_name, client_id, last_sync_watermark, last_sync, last_sync_duration_ms
	FROM sync_scope_clients
	WHERE scope_name = $1 AND client_id = $2;`

	saveScopeClientInfo = `INSERT INTO sync_scope_clients (
			scope_name, client_id, last_sync_watermark, last_sync, last_sync_duration_ms
		) VALUES ($1, $2, $3, now(), $4)
		ON CONFLICT (scope_name, client_id) DO UPDATE SET
			last_sync_watermark   = EXCLUDED.last_sync_watermark,
			last_sync             = now(),
			last_sync_duration_ms = EXCLUDED.last_sync_duration_ms;`

	currentWatermark = `SELECT CASE WHEN is_called THEN last_value ELSE 0 END
	FROM sync_row_version_seq;`

	advanceWatermark = `SELECT setval('sync_row_version_seq', GREATEST($1::bigint,
		(SELECT CASE WHEN is_called THEN last_value ELSE 1 END FROM sync_row_version_seq)), true);`
)

// pgProvider is the PostgreSQL-backed implementation of [provider.Provider].
// It is bound to a single pooled connection for its whole lifetime.
type pgProvider struct {
	conn       *sql.Conn
	logger     *logger.Logger
	classifier provider.ErrorClassificator
}

// Name implements [provider.Provider].
func (p *pgProvider) Name() string { return "postgres" }

// Close implements [provider.Provider]. It releases the pinned connection
// back to the factory pool.
func (p *pgProvider) Close() error {
	return p.conn.Close()
}

// Classifier implements [provider.Provider].
func (p *pgProvider) Classifier() provider.ErrorClassificator {
	return p.classifier
}

// EnsureScopeTables implements [provider.Provider]. The statements mirror
// the goose migrations; this path exists for embedded use where nobody runs
// the migration binary first.
func (p *pgProvider) EnsureScopeTables(ctx context.Context) error {
	if _, err := p.conn.ExecContext(ctx, createScopeTables); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "*pgProvider.EnsureScopeTables").
			Msg("failed to create scope metadata tables")
		return p.wrap(err)
	}
	return nil
}

// ScopeTableExists implements [provider.Provider].
func (p *pgProvider) ScopeTableExists(ctx context.Context) (bool, error) {
	var exists bool
	if err := p.conn.QueryRowContext(ctx, scopeTableExists).Scan(&exists); err != nil {
		return false, p.wrap(err)
	}
	return exists, nil
}

// GetScopeInfo implements [provider.Provider].
func (p *pgProvider) GetScopeInfo(ctx context.Context, scopeName string) (models.ScopeInfo, error) {
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
			Str("func", "*pgProvider.GetScopeInfo").
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
func (p *pgProvider) SaveScopeInfo(ctx context.Context, scope models.ScopeInfo) error {
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
			Str("func", "*pgProvider.SaveScopeInfo").
			Str("scope", scope.Name).
			Msg("failed to save scope info")
		return p.wrap(err)
	}

	return nil
}

// GetScopeClientInfo implements [provider.Provider].
func (p *pgProvider) GetScopeClientInfo(ctx context.Context, scopeName, clientID string) (models.ScopeClientInfo, error) {
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
func (p *pgProvider) SaveScopeClientInfo(ctx context.Context, info models.ScopeClientInfo) error {
	_, err := p.conn.ExecContext(ctx, saveScopeClientInfo,
		info.ScopeName,
		info.ClientID,
		info.LastSyncWatermark,
		info.LastSyncDuration.Milliseconds(),
	)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "*pgProvider.SaveScopeClientInfo").
			Str("scope", info.ScopeName).
			Str("client_id", info.ClientID).
			Msg("failed to save scope client info")
		return p.wrap(err)
	}
	return nil
}

// CurrentWatermark implements [provider.Provider].
func (p *pgProvider) CurrentWatermark(ctx context.Context) (int64, error) {
	var watermark int64
	if err := p.conn.QueryRowContext(ctx, currentWatermark).Scan(&watermark); err != nil {
		return 0, p.wrap(err)
	}
	return watermark, nil
}

// DisableConstraints implements [provider.Provider]. Session replication
// role also suspends the change-capture triggers; the apply path stamps
// tracking records explicitly, so nothing is lost while it is active.
func (p *pgProvider) DisableConstraints(ctx context.Context) error {
	if _, err := p.conn.ExecContext(ctx, `SET session_replication_role = 'replica';`); err != nil {
		return p.wrap(err)
	}
	return nil
}

// EnableConstraints implements [provider.Provider].
func (p *pgProvider) EnableConstraints(ctx context.Context) error {
	if _, err := p.conn.ExecContext(ctx, `SET session_replication_role = 'origin';`); err != nil {
		return p.wrap(err)
	}
	return nil
}

// wrap classifies err and tags transient faults as connection failures so
// the retry policy can recognize them after wrapping.
func (p *pgProvider) wrap(err error) error {
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

// qualifiedName renders schema.table with quoting, omitting the schema part
// when the setup left it empty.
func qualifiedName(table models.TableSchema) string {
	if table.SchemaName == "" {
		return quoteIdent(table.Name)
	}
	return quoteIdent(table.SchemaName) + "." + quoteIdent(table.Name)
}

// trackingTableName is the tracking-table identifier for a synced table.
func trackingTableName(tableName string) string {
	return "sync_" + tableName + "_tracking"
}
