// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

// ConflictResolution is the decision applied to a conflicting row.
type ConflictResolution string

const (
	// ServerWins keeps the incoming (hub-side) row and overwrites the
	// local pending change. This is the default policy.
	ServerWins ConflictResolution = "server_wins"

	// ClientWins keeps the local pending change and skips the incoming
	// row; the local change still uploads on its own schedule.
	ClientWins ConflictResolution = "client_wins"

	// MergeRow writes the row produced by a custom merge hook instead of
	// either side's version.
	MergeRow ConflictResolution = "merge_row"
)

// ConflictRecord pairs the two versions of a key both sides changed since
// their last common watermark. Passed to the conflict hook; after resolution
// it is reported through the session result.
type ConflictRecord struct {
	// Table the conflict occurred in.
	Table string `json:"table"`

	// Key is the primary-key rendering of the conflicting row.
	Key string `json:"key"`

	// RemoteRow is the incoming change.
	RemoteRow SyncRow `json:"remote_row"`

	// LocalVersion is the tracking version of the local pending change.
	LocalVersion int64 `json:"local_version"`

	// LocalTombstone reports whether the local pending change is a delete.
	LocalTombstone bool `json:"local_tombstone"`

	// Resolution records how the conflict was settled.
	Resolution ConflictResolution `json:"resolution"`

	// MergedRow carries the row to write when Resolution is MergeRow.
	MergedRow *SyncRow `json:"merged_row,omitempty"`
}

// ErrorResolution tells the apply engine what to do with a row that failed
// to apply (typically a constraint violation).
type ErrorResolution string

const (
	// ErrorResolutionFatal aborts the session. Default when no error hook
	// is registered.
	ErrorResolutionFatal ErrorResolution = "fatal"

	// ErrorResolutionContinueOnError skips the row and keeps applying.
	ErrorResolutionContinueOnError ErrorResolution = "continue_on_error"

	// ErrorResolutionResolved means the hook fixed the store out of band;
	// the row is retried and a second failure is fatal.
	ErrorResolutionResolved ErrorResolution = "resolved"

	// ErrorResolutionRetryOneMoreTimeAndContinueOnError retries the row
	// exactly once more and skips it if the retry fails too.
	ErrorResolutionRetryOneMoreTimeAndContinueOnError ErrorResolution = "retry_once_then_continue"
)

// OutdatedAction is the decision an OnOutdated hook may take when the hub's
// retained change history no longer covers the client's watermark.
type OutdatedAction string

const (
	// OutdatedAbort fails the session. Default without a hook.
	OutdatedAbort OutdatedAction = "abort"

	// OutdatedReinitialize restarts the client from a full download,
	// dropping local pending changes.
	OutdatedReinitialize OutdatedAction = "reinitialize"

	// OutdatedReinitializeWithUpload uploads local pending changes first,
	// then restarts from a full download.
	OutdatedReinitializeWithUpload OutdatedAction = "reinitialize_with_upload"
)
