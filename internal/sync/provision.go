// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider"
	"github.com/MKhiriev/go-row-sync/models"
)

// ProvisionFlags selects which tracking infrastructure a provision (or
// deprovision) call covers.
type ProvisionFlags uint8

const (
	// ProvisionScopeInfo covers the scope metadata tables.
	ProvisionScopeInfo ProvisionFlags = 1 << iota

	// ProvisionTrackingTable covers per-table tracking tables.
	ProvisionTrackingTable

	// ProvisionTriggers covers the change-capture triggers.
	ProvisionTriggers

	// ProvisionStoredProcedures covers the bulk statement registry.
	ProvisionStoredProcedures

	// ProvisionAll is the full set.
	ProvisionAll = ProvisionScopeInfo | ProvisionTrackingTable | ProvisionTriggers | ProvisionStoredProcedures
)

// Has reports whether flag is part of the set.
func (f ProvisionFlags) Has(flag ProvisionFlags) bool {
	return f&flag != 0
}

// Provisioner creates and removes tracking infrastructure on one store.
//
// Provision is validate-first: the whole setup is introspected before any
// DDL runs, so a missing table, column or primary key fails the call with
// nothing half-created. Both Provision and Deprovision are idempotent.
type Provisioner struct {
	provider provider.Provider
	logger   *logger.Logger
}

// NewProvisioner builds a provisioner over one provider.
func NewProvisioner(p provider.Provider, log *logger.Logger) *Provisioner {
	return &Provisioner{provider: p, logger: log}
}

// Provision validates setup against the live schema and creates the
// selected infrastructure. It returns the introspected, dependency-ordered
// schema the scope was provisioned with.
func (p *Provisioner) Provision(ctx context.Context, setup models.SyncSetup, flags ProvisionFlags) ([]models.TableSchema, error) {
	log := logger.FromContext(ctx)

	schema, err := p.provider.IntrospectSchema(ctx, setup)
	if err != nil {
		return nil, wrapPhase(PhaseProvisioning, "", err)
	}

	if flags.Has(ProvisionScopeInfo) {
		if err = retryExec(ctx, p.provider.Classifier(), func() error {
			return p.provider.EnsureScopeTables(ctx)
		}); err != nil {
			return nil, wrapPhase(PhaseProvisioning, "", err)
		}
	}

	for _, table := range schema {
		if flags.Has(ProvisionTrackingTable) {
			if err = p.provider.CreateTrackingTable(ctx, table); err != nil {
				return nil, wrapTable(PhaseProvisioning, "", table.Name, "", err)
			}
		}
		if flags.Has(ProvisionTriggers) {
			if err = p.provider.CreateTriggers(ctx, table); err != nil {
				return nil, wrapTable(PhaseProvisioning, "", table.Name, "", err)
			}
		}
		if flags.Has(ProvisionStoredProcedures) {
			if err = p.provider.CreateBulkProcedures(ctx, table); err != nil {
				return nil, wrapTable(PhaseProvisioning, "", table.Name, "", err)
			}
		}
		log.Debug().
			Str("func", "*Provisioner.Provision").
			Str("table", table.Name).
			Msg("table provisioned")
	}

	return schema, nil
}

// ProvisionFromSchema creates the selected infrastructure for an already
// resolved schema. Clients use it with the hub's authoritative schema
// snapshot instead of their own introspection.
func (p *Provisioner) ProvisionFromSchema(ctx context.Context, schema []models.TableSchema, flags ProvisionFlags) error {
	if flags.Has(ProvisionScopeInfo) {
		if err := retryExec(ctx, p.provider.Classifier(), func() error {
			return p.provider.EnsureScopeTables(ctx)
		}); err != nil {
			return wrapPhase(PhaseProvisioning, "", err)
		}
	}

	for _, table := range schema {
		if flags.Has(ProvisionTrackingTable) {
			if err := p.provider.CreateTrackingTable(ctx, table); err != nil {
				return wrapTable(PhaseProvisioning, "", table.Name, "", err)
			}
		}
		if flags.Has(ProvisionTriggers) {
			if err := p.provider.CreateTriggers(ctx, table); err != nil {
				return wrapTable(PhaseProvisioning, "", table.Name, "", err)
			}
		}
		if flags.Has(ProvisionStoredProcedures) {
			if err := p.provider.CreateBulkProcedures(ctx, table); err != nil {
				return wrapTable(PhaseProvisioning, "", table.Name, "", err)
			}
		}
	}

	return nil
}

// Deprovision removes the selected infrastructure. Missing objects are
// ignored so a partially provisioned or already deprovisioned store does
// not fail the call. Base table data is never touched.
func (p *Provisioner) Deprovision(ctx context.Context, schema []models.TableSchema, flags ProvisionFlags) error {
	for _, table := range schema {
		if flags.Has(ProvisionTriggers) {
			if err := p.provider.DropTriggers(ctx, table); err != nil {
				return wrapTable(PhaseProvisioning, "", table.Name, "", err)
			}
		}
		if flags.Has(ProvisionStoredProcedures) {
			if err := p.provider.DropBulkProcedures(ctx, table); err != nil {
				return wrapTable(PhaseProvisioning, "", table.Name, "", err)
			}
		}
		if flags.Has(ProvisionTrackingTable) {
			if err := p.provider.DropTrackingTable(ctx, table); err != nil {
				return wrapTable(PhaseProvisioning, "", table.Name, "", err)
			}
		}
	}
	return nil
}

// Provisioned reports whether every selected object exists for every table
// of the schema.
func (p *Provisioner) Provisioned(ctx context.Context, schema []models.TableSchema, flags ProvisionFlags) (bool, error) {
	if flags.Has(ProvisionScopeInfo) {
		exists, err := p.provider.ScopeTableExists(ctx)
		if err != nil || !exists {
			return false, err
		}
	}

	for _, table := range schema {
		if flags.Has(ProvisionTrackingTable) {
			exists, err := p.provider.ExistsTrackingTable(ctx, table.Name)
			if err != nil || !exists {
				return false, err
			}
		}
		if flags.Has(ProvisionTriggers) {
			for _, kind := range []provider.TriggerKind{provider.TriggerInsert, provider.TriggerUpdate, provider.TriggerDelete} {
				exists, err := p.provider.ExistsTrigger(ctx, table.Name, kind)
				if err != nil || !exists {
					return false, err
				}
			}
		}
		if flags.Has(ProvisionStoredProcedures) {
			exists, err := p.provider.ExistsBulkProcedure(ctx, table.Name)
			if err != nil || !exists {
				return false, err
			}
		}
	}

	return true, nil
}
