// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package migrations

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

// TestMigrate_NilDB checks that a nil database handle is rejected before
// any goose machinery runs.
func TestMigrate_NilDB(t *testing.T) {
	err := Migrate(nil, "postgres")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db is nil")
}

// TestMigrate_DBError checks that errors from the underlying database are
// wrapped as migration errors.
func TestMigrate_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(".*").WillReturnError(errors.New("connection refused"))

	err = Migrate(db, "postgres")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "migration error")
}
