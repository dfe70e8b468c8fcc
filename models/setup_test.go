// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSyncDirection_Flow verifies the upload/download permissions of each
// direction value.
func TestSyncDirection_Flow(t *testing.T) {
	assert.True(t, Bidirectional.AllowsUpload())
	assert.True(t, Bidirectional.AllowsDownload())

	assert.True(t, UploadOnly.AllowsUpload())
	assert.False(t, UploadOnly.AllowsDownload())

	assert.False(t, DownloadOnly.AllowsUpload())
	assert.True(t, DownloadOnly.AllowsDownload())
}

// TestSetupTable_EffectiveDirection verifies the empty default resolves to
// bidirectional.
func TestSetupTable_EffectiveDirection(t *testing.T) {
	assert.Equal(t, Bidirectional, SetupTable{TableName: "product"}.EffectiveDirection())
	assert.Equal(t, UploadOnly, SetupTable{TableName: "product", Direction: UploadOnly}.EffectiveDirection())
}

// TestSyncSetup_Fingerprint verifies the fingerprint is insensitive to table
// order but sensitive to content.
func TestSyncSetup_Fingerprint(t *testing.T) {
	a := SyncSetup{Tables: []SetupTable{
		{TableName: "product"},
		{TableName: "product_category"},
	}}
	b := SyncSetup{Tables: []SetupTable{
		{TableName: "product_category"},
		{TableName: "product"},
	}}
	c := SyncSetup{Tables: []SetupTable{
		{TableName: "product", Direction: UploadOnly},
		{TableName: "product_category"},
	}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotEmpty(t, a.Fingerprint())
}

// TestNewSyncSetup verifies bare names become bidirectional entries.
func TestNewSyncSetup(t *testing.T) {
	setup := NewSyncSetup("product_category", "product")

	assert.True(t, setup.HasTables())
	assert.Len(t, setup.Tables, 2)

	entry, ok := setup.Table("product")
	assert.True(t, ok)
	assert.Equal(t, Bidirectional, entry.EffectiveDirection())

	_, ok = setup.Table("missing")
	assert.False(t, ok)
}

// TestParseSyncSetup verifies "name:direction" entries carry their direction
// into the setup and bare names stay bidirectional.
func TestParseSyncSetup(t *testing.T) {
	setup, err := ParseSyncSetup("product_category", "product:upload_only", "price_list:download_only")
	require.NoError(t, err)
	require.Len(t, setup.Tables, 3)

	entry, ok := setup.Table("product_category")
	assert.True(t, ok)
	assert.Equal(t, Bidirectional, entry.EffectiveDirection())

	entry, _ = setup.Table("product")
	assert.Equal(t, UploadOnly, entry.Direction)

	entry, _ = setup.Table("price_list")
	assert.Equal(t, DownloadOnly, entry.Direction)
}

// TestParseSyncSetup_Invalid rejects unknown directions and empty names.
func TestParseSyncSetup_Invalid(t *testing.T) {
	_, err := ParseSyncSetup("product:sideways")
	assert.Error(t, err)

	_, err = ParseSyncSetup(":upload_only")
	assert.Error(t, err)
}
