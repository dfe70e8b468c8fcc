// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package sqlite implements the provider capability for SQLite using the
// mattn/go-sqlite3 driver. It is the replica-side backend: change capture
// uses per-table tracking tables kept current by triggers, and the logical
// change counter lives in a one-row sequence table the triggers increment.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/MKhiriev/go-row-sync/internal/config"
	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // database/sql driver
)

// Factory owns the SQLite connection pool and opens session-scoped
// providers pinned to a single connection each.
type Factory struct {
	// DB is exported so binaries and tests can seed schemas through the
	// same pool.
	DB *sql.DB

	logger *logger.Logger
}

// NewFactory opens the database described by cfg.
//
// A bare ":memory:" path is rewritten to a named shared-cache memory
// database: without the rewrite every pooled connection would get its own
// empty in-memory database, and a provider pinned to a second connection
// would see none of the replica's tables.
func NewFactory(ctx context.Context, cfg config.SQLite, log *logger.Logger) (*Factory, error) {
	dsn := cfg.Path
	if dsn == "" || dsn == ":memory:" || dsn == "memory" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	} else if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn + "?_busy_timeout=5000"
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.Err(err).Str("func", "sqlite.NewFactory").Msg("error occured during database connection")
		return nil, fmt.Errorf("%w: %w", provider.ErrConnectionFailure, err)
	}

	// SQLite serializes writers anyway; a small pool avoids lock churn.
	conn.SetMaxOpenConns(4)

	if err = conn.PingContext(ctx); err != nil {
		log.Err(err).Str("func", "sqlite.NewFactory").Msg("error connecting database (ping)")
		return nil, fmt.Errorf("%w: %w", provider.ErrConnectionFailure, err)
	}
	log.Info().Str("func", "sqlite.NewFactory").Str("dsn", dsn).Msg("connected to database successfully")

	return &Factory{DB: conn, logger: log}, nil
}

// Name implements [provider.Factory].
func (f *Factory) Name() string { return "sqlite" }

// Open implements [provider.Factory]. Foreign-key enforcement is switched
// on per pinned connection; mattn/go-sqlite3 leaves it off by default.
func (f *Factory) Open(ctx context.Context) (provider.Provider, error) {
	conn, err := f.DB.Conn(ctx)
	if err != nil {
		f.logger.Err(err).Str("func", "*Factory.Open").Msg("failed to acquire connection")
		return nil, fmt.Errorf("%w: %w", provider.ErrConnectionFailure, err)
	}

	if _, err = conn.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", provider.ErrConnectionFailure, err)
	}

	return &liteProvider{
		conn:       conn,
		logger:     f.logger,
		classifier: NewErrorClassifier(),
	}, nil
}

// Close implements [provider.Factory].
func (f *Factory) Close() error {
	return f.DB.Close()
}
