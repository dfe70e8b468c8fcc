// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"time"

	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/cenkalti/backoff/v5"
)

const (
	retryMaxTries        = 4
	retryInitialInterval = 100 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
)

// withRetry runs op under a bounded exponential backoff, retrying only
// errors the backend classifier marks Retryable (lock contention, transient
// connection faults). Everything else fails immediately.
func withRetry[T any](ctx context.Context, classifier provider.ErrorClassificator, op func() (T, error)) (T, error) {
	wrapped := func() (T, error) {
		value, err := op()
		if err != nil && classifier.Classify(err) != provider.Retryable {
			return value, backoff.Permanent(err)
		}
		return value, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(retryMaxTries),
	)
}

// retryExec is withRetry for operations without a return value.
func retryExec(ctx context.Context, classifier provider.ErrorClassificator, op func() error) error {
	_, err := withRetry(ctx, classifier, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
