// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package crypto provides the encrypting batch serializer: batch parts are
// sealed with AES-GCM under a key derived from a shared passphrase via
// Argon2id, so spilled part files and snapshot exports are opaque at rest
// and in transit.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/MKhiriev/go-row-sync/models"
	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 16
	keyLen  = 32 // 256 bits

	// Argon2id parameters per the OWASP (2024) recommendation.
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 4
)

// ErrMalformedPayload is returned when a sealed payload is too short to
// contain its salt and nonce.
var ErrMalformedPayload = errors.New("malformed encrypted payload")

// BatchCipher seals and opens batch part payloads. It satisfies the
// engine's Serializer contract, so it plugs straight into the batcher.
//
// Payload layout: salt || nonce || ciphertext. The salt is fresh per
// payload, so equal row sets never produce equal blobs.
type BatchCipher struct {
	passphrase []byte
}

// NewBatchCipher builds a cipher over a shared passphrase. Both sides of a
// scope must configure the same passphrase or deserialization fails
// authentication.
func NewBatchCipher(passphrase string) *BatchCipher {
	return &BatchCipher{passphrase: []byte(passphrase)}
}

// Serialize encodes rows as JSON and seals them.
func (c *BatchCipher) Serialize(rows []models.SyncRow) ([]byte, error) {
	plaintext, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode batch part: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := make([]byte, 0, saltLen+len(nonce)+len(plaintext)+gcm.Overhead())
	sealed = append(sealed, salt...)
	sealed = append(sealed, nonce...)
	return gcm.Seal(sealed, nonce, plaintext, nil), nil
}

// Deserialize opens a sealed payload and decodes the rows. A wrong
// passphrase or a tampered payload fails GCM authentication.
func (c *BatchCipher) Deserialize(payload []byte) ([]models.SyncRow, error) {
	if len(payload) < saltLen {
		return nil, ErrMalformedPayload
	}
	salt, rest := payload[:saltLen], payload[saltLen:]

	gcm, err := c.aead(salt)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, ErrMalformedPayload
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open batch part: %w", err)
	}

	var rows []models.SyncRow
	if err = json.Unmarshal(plaintext, &rows); err != nil {
		return nil, fmt.Errorf("decode batch part: %w", err)
	}
	return rows, nil
}

// aead derives the AES key for salt and wraps it in GCM.
func (c *BatchCipher) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(c.passphrase, salt, argonTime, argonMemory, argonThreads, keyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
