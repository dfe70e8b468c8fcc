// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-row-sync/models"
)

func sampleRows() []models.SyncRow {
	return []models.SyncRow{
		{
			Values:  map[string]any{"id": float64(1), "name": "widget"},
			State:   models.RowModified,
			Version: 3,
		},
		{
			Values:  map[string]any{"id": float64(2)},
			State:   models.RowDeleted,
			Version: 5,
		},
	}
}

// TestBatchCipher_RoundTrip verifies sealed rows open back to the same
// content under the same passphrase.
func TestBatchCipher_RoundTrip(t *testing.T) {
	c := NewBatchCipher("correct horse battery staple")

	sealed, err := c.Serialize(sampleRows())
	require.NoError(t, err)

	rows, err := c.Deserialize(sealed)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), rows)
}

// TestBatchCipher_FreshSaltPerPayload verifies equal row sets never produce
// equal blobs.
func TestBatchCipher_FreshSaltPerPayload(t *testing.T) {
	c := NewBatchCipher("correct horse battery staple")

	first, err := c.Serialize(sampleRows())
	require.NoError(t, err)
	second, err := c.Serialize(sampleRows())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

// TestBatchCipher_WrongPassphrase verifies GCM authentication fails under a
// different passphrase.
func TestBatchCipher_WrongPassphrase(t *testing.T) {
	sealed, err := NewBatchCipher("passphrase-one").Serialize(sampleRows())
	require.NoError(t, err)

	_, err = NewBatchCipher("passphrase-two").Deserialize(sealed)
	assert.Error(t, err)
}

// TestBatchCipher_Tampered verifies a flipped ciphertext bit is detected.
func TestBatchCipher_Tampered(t *testing.T) {
	c := NewBatchCipher("correct horse battery staple")

	sealed, err := c.Serialize(sampleRows())
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01

	_, err = c.Deserialize(sealed)
	assert.Error(t, err)
}

// TestBatchCipher_TruncatedPayload verifies short payloads are rejected
// before key derivation.
func TestBatchCipher_TruncatedPayload(t *testing.T) {
	c := NewBatchCipher("correct horse battery staple")

	_, err := c.Deserialize([]byte("short"))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
