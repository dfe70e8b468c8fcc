// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

// TestProvisioner_ProvisionAndDeprovision walks the full lifecycle on a live
// store: provision, verify, deprovision, verify again.
func TestProvisioner_ProvisionAndDeprovision(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	p, err := store.Open(ctx)
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	prov := NewProvisioner(p, logger.Nop())

	schema, err := prov.Provision(ctx, retailSetup(), ProvisionAll)
	require.NoError(t, err)
	require.Len(t, schema, 2)

	// Dependency order: the referenced table first.
	assert.Equal(t, "product_category", schema[0].Name)
	assert.Equal(t, "product", schema[1].Name)

	ok, err := prov.Provisioned(ctx, schema, ProvisionAll)
	require.NoError(t, err)
	assert.True(t, ok)

	// Idempotent: a second provision pass is a no-op, not an error.
	_, err = prov.Provision(ctx, retailSetup(), ProvisionAll)
	require.NoError(t, err)

	require.NoError(t, prov.Deprovision(ctx, schema, ProvisionTriggers|ProvisionTrackingTable|ProvisionStoredProcedures))

	ok, err = prov.Provisioned(ctx, schema, ProvisionTrackingTable)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deprovisioning never touches base data.
	assert.Zero(t, count(t, store.DB, "product"))
	require.NoError(t, prov.Deprovision(ctx, schema, ProvisionAll&^ProvisionScopeInfo))
}

// TestProvisioner_MissingTableFailsBeforeDDL checks validate-first behavior:
// a setup naming an absent table fails with nothing created.
func TestProvisioner_MissingTableFailsBeforeDDL(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	p, err := store.Open(ctx)
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	prov := NewProvisioner(p, logger.Nop())

	_, err = prov.Provision(ctx, models.NewSyncSetup("product", "warehouse"), ProvisionAll)
	assert.ErrorIs(t, err, provider.ErrMissingTable)

	exists, err := p.ExistsTrackingTable(ctx, "product")
	require.NoError(t, err)
	assert.False(t, exists, "no tracking infrastructure may exist after a failed validation")
}

// TestProvisioner_ColumnSubset checks the synced column subset always
// includes the primary key and filters the rest.
func TestProvisioner_ColumnSubset(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	p, err := store.Open(ctx)
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	setup := models.SyncSetup{Tables: []models.SetupTable{
		{TableName: "product_category"},
		{TableName: "product", Columns: []string{"name"}},
	}}

	schema, err := NewProvisioner(p, logger.Nop()).Provision(ctx, setup, ProvisionAll)
	require.NoError(t, err)

	product, ok := models.ScopeInfo{Schema: schema}.Table("product")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"id", "name"}, product.ColumnNames())
	assert.Equal(t, []string{"id"}, product.PrimaryKeys())
}
