// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MKhiriev/go-row-sync/internal/config"
	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/mock"
	"github.com/MKhiriev/go-row-sync/internal/provider/sqlite"
	rowsync "github.com/MKhiriev/go-row-sync/internal/sync"
	"github.com/MKhiriev/go-row-sync/models"
)

type countingWorker struct {
	runs int
}

func (w *countingWorker) Run() { w.runs++ }

// TestWorkers_RunsEveryWorker starts each registered worker exactly once.
func TestWorkers_RunsEveryWorker(t *testing.T) {
	first := &countingWorker{}
	second := &countingWorker{}

	NewWorkers(first, second).Run()

	assert.Equal(t, 1, first.runs)
	assert.Equal(t, 1, second.runs)
}

// newIdleAgent builds an agent over an empty replica whose hub is a mock
// signalling every sync attempt on calls.
func newIdleAgent(t *testing.T, ctrl *gomock.Controller, calls chan<- struct{}) *rowsync.Agent {
	t.Helper()

	factory, err := sqlite.NewFactory(context.Background(), config.SQLite{Path: ":memory:"}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { factory.Close() }) //nolint:errcheck

	remote := mock.NewMockRemoteOrchestrator(ctrl)
	remote.EXPECT().
		EnsureScope(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, models.EnsureScopeRequest) (models.EnsureScopeResponse, error) {
			select {
			case calls <- struct{}{}:
			default:
			}
			return models.EnsureScopeResponse{}, errors.New("hub unavailable")
		}).
		AnyTimes()

	local := rowsync.NewLocalOrchestrator(factory, rowsync.Options{}, logger.Nop())
	return rowsync.NewAgent(local, remote, "retail", "client-1", models.NewSyncSetup("product"), rowsync.Options{}, logger.Nop())
}

// TestSyncJob_TicksUntilStopped verifies the interval job keeps attempting
// sessions and that Stop waits the goroutine out.
func TestSyncJob_TicksUntilStopped(t *testing.T) {
	ctrl := gomock.NewController(t)
	calls := make(chan struct{}, 1)

	job := NewSyncJob(newIdleAgent(t, ctrl, calls), time.Hour, logger.Nop())
	job.Start(context.Background(), 5*time.Millisecond)

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("background job never attempted a sync")
	}

	job.Stop()

	// Stop is idempotent and safe on a stopped job.
	job.Stop()
}

// TestSyncJob_StartReplacesPriorRun restarts cleanly without leaking the
// first goroutine.
func TestSyncJob_StartReplacesPriorRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	calls := make(chan struct{}, 1)

	job := NewSyncJob(newIdleAgent(t, ctrl, calls), time.Hour, logger.Nop())
	job.Start(context.Background(), 5*time.Millisecond)
	job.Start(context.Background(), 5*time.Millisecond)

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("restarted job never attempted a sync")
	}

	job.Stop()
}

// TestSyncJob_StopsOnContextCancel exits when the caller's context ends.
func TestSyncJob_StopsOnContextCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	calls := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	job := NewSyncJob(newIdleAgent(t, ctrl, calls), time.Hour, logger.Nop())
	job.Start(ctx, 5*time.Millisecond)

	cancel()

	// Stop must return promptly once the context has stopped the loop.
	done := make(chan struct{})
	go func() {
		job.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}
