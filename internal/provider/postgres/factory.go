// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package postgres implements the provider capability for PostgreSQL using
// the pgx stdlib driver. Change capture uses per-table tracking tables kept
// current by plpgsql triggers; the logical change counter is a shared
// sequence advanced past every applied remote version, so version numbers
// from both sides stay comparable.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MKhiriev/go-row-sync/internal/config"
	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
)

// Factory owns the PostgreSQL connection pool and opens session-scoped
// providers pinned to a single connection each.
type Factory struct {
	// DB is exported so binaries and tests can run migrations and seed
	// schemas through the same pool.
	DB *sql.DB

	logger *logger.Logger
}

// NewFactory opens the pool described by cfg and pings it.
func NewFactory(ctx context.Context, cfg config.DB, log *logger.Logger) (*Factory, error) {
	conn, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		log.Err(err).Str("func", "postgres.NewFactory").Msg("error occured during database connection")
		return nil, fmt.Errorf("%w: %w", provider.ErrConnectionFailure, err)
	}

	// setup connections
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(4)

	// ping database
	if err = conn.PingContext(ctx); err != nil {
		log.Err(err).Str("func", "postgres.NewFactory").Msg("error connecting database (ping)")
		return nil, fmt.Errorf("%w: %w", provider.ErrConnectionFailure, err)
	}
	log.Info().Str("func", "postgres.NewFactory").Msg("connected to database successfully")

	return &Factory{DB: conn, logger: log}, nil
}

// Name implements [provider.Factory].
func (f *Factory) Name() string { return "postgres" }

// Open implements [provider.Factory]. The returned provider holds one pooled
// connection until its Close, so session-level settings such as
// session_replication_role stay scoped to one session.
func (f *Factory) Open(ctx context.Context) (provider.Provider, error) {
	conn, err := f.DB.Conn(ctx)
	if err != nil {
		f.logger.Err(err).Str("func", "*Factory.Open").Msg("failed to acquire connection")
		return nil, fmt.Errorf("%w: %w", provider.ErrConnectionFailure, err)
	}

	return &pgProvider{
		conn:       conn,
		logger:     f.logger,
		classifier: NewErrorClassifier(),
	}, nil
}

// Close implements [provider.Factory].
func (f *Factory) Close() error {
	return f.DB.Close()
}
