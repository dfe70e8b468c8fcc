// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package adapter is the replica's view of the hub over HTTP. It implements
// the engine's RemoteOrchestrator interface with a resty client, so the
// agent cannot tell a network hub from an in-process one.
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MKhiriev/go-row-sync/internal/sync"
	"github.com/MKhiriev/go-row-sync/internal/token"
	"github.com/MKhiriev/go-row-sync/models"
	"github.com/go-resty/resty/v2"
)

// HTTPClientConfig configures the hub connection.
type HTTPClientConfig struct {
	BaseURL  string
	ClientID string
	Timeout  time.Duration

	// TokenSignKey and TokenIssuer must match the hub's token service;
	// the replica signs its own bearer token.
	TokenSignKey string
	TokenIssuer  string
}

// remoteClient implements [sync.RemoteOrchestrator] over HTTP.
type remoteClient struct {
	client *resty.Client
	tokens *token.Service

	clientID string
}

// NewRemoteClient builds the HTTP-backed remote orchestrator.
func NewRemoteClient(cfg HTTPClientConfig) sync.RemoteOrchestrator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &remoteClient{
		client:   cli,
		tokens:   token.NewService(cfg.TokenSignKey, cfg.TokenIssuer, 0),
		clientID: cfg.ClientID,
	}
}

// EnsureScope implements [sync.RemoteOrchestrator].
func (c *remoteClient) EnsureScope(ctx context.Context, req models.EnsureScopeRequest) (models.EnsureScopeResponse, error) {
	var out models.EnsureScopeResponse
	if err := c.post(ctx, "/api/sync/scope", req, &out); err != nil {
		return models.EnsureScopeResponse{}, fmt.Errorf("ensure scope: %w", err)
	}
	return out, nil
}

// SyncChanges implements [sync.RemoteOrchestrator].
func (c *remoteClient) SyncChanges(ctx context.Context, req models.SyncChangesRequest) (models.SyncChangesResponse, error) {
	var out models.SyncChangesResponse
	if err := c.post(ctx, "/api/sync/changes", req, &out); err != nil {
		return models.SyncChangesResponse{}, fmt.Errorf("sync changes: %w", err)
	}
	return out, nil
}

// GetSnapshot implements [sync.RemoteOrchestrator].
func (c *remoteClient) GetSnapshot(ctx context.Context, scope string) (*models.SnapshotInfo, error) {
	bearer, err := c.tokens.Issue(c.clientID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var out models.SnapshotInfo
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(bearer).
		SetResult(&out).
		Get("/api/sync/snapshot/" + scope)
	if err != nil {
		return nil, fmt.Errorf("get snapshot request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &out, nil
}

func (c *remoteClient) post(ctx context.Context, path string, body, out any) error {
	bearer, err := c.tokens.Issue(c.clientID)
	if err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(bearer).
		SetBody(body).
		SetResult(out).
		Post(path)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	return mapHTTPError(resp)
}
