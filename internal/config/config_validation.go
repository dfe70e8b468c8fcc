package config

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeBatchSize is returned when SYNC_BATCH_SIZE is below zero.
	ErrNegativeBatchSize = errors.New("batch size must not be negative")

	// ErrUnknownConflictPolicy is returned when the conflict policy name
	// is not one of the recognized values.
	ErrUnknownConflictPolicy = errors.New("unknown conflict resolution policy")
)

// validate checks cross-source consistency of the merged configuration.
// Address, DSN and scope presence are validated by the binaries themselves,
// because the server and the agent require different subsets.
func (c *StructuredConfig) validate() error {
	if c.Sync.BatchSize < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeBatchSize, c.Sync.BatchSize)
	}

	switch c.Sync.ConflictResolutionPolicy {
	case "", "server_wins", "client_wins":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConflictPolicy, c.Sync.ConflictResolutionPolicy)
	}

	return nil
}
