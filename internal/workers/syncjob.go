// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	rowsync "github.com/MKhiriev/go-row-sync/internal/sync"
	"github.com/MKhiriev/go-row-sync/models"
)

// SyncJob runs the agent's Synchronize on a ticker. The job is idle until
// Start is called; Stop blocks until the background goroutine exits, so a
// session in flight finishes before shutdown proceeds.
type SyncJob struct {
	agent    *rowsync.Agent
	interval time.Duration
	logger   *logger.Logger

	mu     stdsync.Mutex
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// NewSyncJob wires the interval job around one agent.
func NewSyncJob(agent *rowsync.Agent, interval time.Duration, log *logger.Logger) *SyncJob {
	return &SyncJob{agent: agent, interval: interval, logger: log}
}

// Run implements [Worker] with the configured interval.
func (j *SyncJob) Run() {
	j.Start(context.Background(), j.interval)
}

// Start stops any previously running job, then launches a goroutine that
// synchronizes every interval. Zero or negative intervals default to five
// minutes. The goroutine exits when ctx is cancelled or Stop is called.
func (j *SyncJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				if _, err := j.agent.Synchronize(jobCtx, models.SyncTypeNormal); err != nil {
					j.logger.Err(err).
						Str("func", "*SyncJob.Start").
						Msg("background sync failed")
				}
			}
		}
	}()
}

// Stop cancels the background goroutine and blocks until it has exited.
// Safe to call when the job is not running.
func (j *SyncJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}
