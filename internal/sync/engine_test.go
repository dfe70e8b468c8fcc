// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sync

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-row-sync/internal/config"
	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider/sqlite"
	"github.com/MKhiriev/go-row-sync/models"
)

// The protocol tests run a real hub and a real replica, both on in-memory
// SQLite stores, with the coordinator plugged into the agent in-process.

const (
	ddlCategory = `CREATE TABLE product_category (
		id   INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);`
	ddlProduct = `CREATE TABLE product (
		id          INTEGER PRIMARY KEY,
		category_id INTEGER NOT NULL REFERENCES product_category (id),
		name        TEXT NOT NULL,
		price       REAL NOT NULL DEFAULT 0
	);`
)

func newStore(t *testing.T) *sqlite.Factory {
	t.Helper()

	f, err := sqlite.NewFactory(context.Background(), config.SQLite{Path: ":memory:"}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	mustExec(t, f.DB, ddlCategory)
	mustExec(t, f.DB, ddlProduct)
	return f
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err)
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func productName(t *testing.T, db *sql.DB, id int) string {
	t.Helper()
	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM product WHERE id = ?`, id).Scan(&name))
	return name
}

type fixture struct {
	hub         *sqlite.Factory
	replica     *sqlite.Factory
	coordinator *Coordinator
	agent       *Agent
}

func newFixture(t *testing.T, setup models.SyncSetup, opts Options) *fixture {
	t.Helper()

	hub := newStore(t)
	replica := newStore(t)

	coordinator := NewCoordinator(hub, opts, logger.Nop())
	local := NewLocalOrchestrator(replica, opts, logger.Nop())
	agent := NewAgent(local, coordinator, "retail", "client-1", setup, opts, logger.Nop())

	return &fixture{hub: hub, replica: replica, coordinator: coordinator, agent: agent}
}

func retailSetup() models.SyncSetup {
	return models.NewSyncSetup("product_category", "product")
}

func syncOnce(t *testing.T, f *fixture) *models.SyncResult {
	t.Helper()
	result, err := f.agent.Synchronize(context.Background(), models.SyncTypeNormal)
	require.NoError(t, err)
	return result
}

// TestSynchronize_FirstSyncConverges seeds both sides before provisioning
// and checks one session leaves both stores with the union of the data. The
// follow-up session must be a complete no-op.
func TestSynchronize_FirstSyncConverges(t *testing.T) {
	f := newFixture(t, retailSetup(), Options{})

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools'), (2, 'toys')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10), (2, 2, 'kite', 5)`)

	mustExec(t, f.replica.DB, `INSERT INTO product_category (id, name) VALUES (10, 'books')`)
	mustExec(t, f.replica.DB, `INSERT INTO product (id, category_id, name, price) VALUES (100, 10, 'atlas', 30)`)

	result := syncOnce(t, f)

	assert.Equal(t, 2, result.TotalChangesUploadedToServer)
	assert.Equal(t, 2, result.TotalChangesAppliedOnServer)
	assert.Equal(t, 4, result.TotalChangesDownloaded)

	for _, db := range []*sql.DB{f.hub.DB, f.replica.DB} {
		assert.Equal(t, 3, count(t, db, "product_category"))
		assert.Equal(t, 3, count(t, db, "product"))
	}

	// No echo, no rework: the next session moves nothing.
	again := syncOnce(t, f)
	assert.Zero(t, again.TotalChangesUploadedToServer)
	assert.Zero(t, again.TotalChangesDownloaded)
	assert.Zero(t, again.TotalChangesAppliedOnClient)
}

// TestSynchronize_IncrementalPropagation checks that edits made after a
// completed session flow both ways on the next one.
func TestSynchronize_IncrementalPropagation(t *testing.T) {
	f := newFixture(t, retailSetup(), Options{})

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10), (2, 1, 'saw', 20)`)
	syncOnce(t, f)

	mustExec(t, f.hub.DB, `UPDATE product SET name = 'sledgehammer' WHERE id = 1`)
	mustExec(t, f.replica.DB, `UPDATE product SET name = 'handsaw' WHERE id = 2`)

	result := syncOnce(t, f)

	assert.Equal(t, 1, result.TotalChangesUploadedToServer)
	assert.Equal(t, 1, result.TotalChangesDownloaded)
	assert.Zero(t, result.TotalResolvedConflicts)

	for _, db := range []*sql.DB{f.hub.DB, f.replica.DB} {
		assert.Equal(t, "sledgehammer", productName(t, db, 1))
		assert.Equal(t, "handsaw", productName(t, db, 2))
	}
}

// TestSynchronize_DeletePropagation checks tombstones travel both ways and
// remove the row on the other side.
func TestSynchronize_DeletePropagation(t *testing.T) {
	f := newFixture(t, retailSetup(), Options{})

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10), (2, 1, 'saw', 20)`)
	syncOnce(t, f)

	mustExec(t, f.hub.DB, `DELETE FROM product WHERE id = 1`)
	mustExec(t, f.replica.DB, `DELETE FROM product WHERE id = 2`)

	syncOnce(t, f)

	for _, db := range []*sql.DB{f.hub.DB, f.replica.DB} {
		assert.Equal(t, 0, count(t, db, "product"))
	}
}

// TestSynchronize_ConflictServerWins has both sides edit the same row; under
// the default policy the hub's value must end up everywhere and the conflict
// must be counted exactly once.
func TestSynchronize_ConflictServerWins(t *testing.T) {
	f := newFixture(t, retailSetup(), Options{})

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10)`)
	syncOnce(t, f)

	mustExec(t, f.hub.DB, `UPDATE product SET name = 'hub-hammer' WHERE id = 1`)
	mustExec(t, f.replica.DB, `UPDATE product SET name = 'replica-hammer' WHERE id = 1`)

	result := syncOnce(t, f)

	assert.Equal(t, 1, result.TotalResolvedConflicts)
	assert.Equal(t, "hub-hammer", productName(t, f.hub.DB, 1))
	assert.Equal(t, "hub-hammer", productName(t, f.replica.DB, 1))
}

// TestSynchronize_ConflictClientWins flips the policy; the replica's value
// must end up everywhere.
func TestSynchronize_ConflictClientWins(t *testing.T) {
	f := newFixture(t, retailSetup(), Options{ConflictPolicy: models.ClientWins})

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10)`)
	syncOnce(t, f)

	mustExec(t, f.hub.DB, `UPDATE product SET name = 'hub-hammer' WHERE id = 1`)
	mustExec(t, f.replica.DB, `UPDATE product SET name = 'replica-hammer' WHERE id = 1`)

	result := syncOnce(t, f)

	assert.Equal(t, 1, result.TotalResolvedConflicts)
	assert.Equal(t, "replica-hammer", productName(t, f.hub.DB, 1))
	assert.Equal(t, "replica-hammer", productName(t, f.replica.DB, 1))
}

// TestSynchronize_ConflictMergeHook resolves the conflict through a custom
// merge; the merged row must land on both sides.
func TestSynchronize_ConflictMergeHook(t *testing.T) {
	opts := Options{
		Interceptors: Interceptors{
			OnConflict: func(_ context.Context, record *models.ConflictRecord) models.ConflictResolution {
				merged := record.RemoteRow
				merged.Values = map[string]any{
					"id":          merged.Values["id"],
					"category_id": merged.Values["category_id"],
					"name":        "merged-hammer",
					"price":       merged.Values["price"],
				}
				record.MergedRow = &merged
				return models.MergeRow
			},
		},
	}
	f := newFixture(t, retailSetup(), opts)

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10)`)
	syncOnce(t, f)

	mustExec(t, f.hub.DB, `UPDATE product SET name = 'hub-hammer' WHERE id = 1`)
	mustExec(t, f.replica.DB, `UPDATE product SET name = 'replica-hammer' WHERE id = 1`)

	result := syncOnce(t, f)

	assert.Equal(t, 1, result.TotalResolvedConflicts)
	assert.Equal(t, "merged-hammer", productName(t, f.hub.DB, 1))
	assert.Equal(t, "merged-hammer", productName(t, f.replica.DB, 1))
}

// TestSynchronize_UploadOnlyDirection checks an upload_only table pushes
// replica changes to the hub but never receives hub changes.
func TestSynchronize_UploadOnlyDirection(t *testing.T) {
	setup := models.SyncSetup{Tables: []models.SetupTable{
		{TableName: "product_category"},
		{TableName: "product", Direction: models.UploadOnly},
	}}
	f := newFixture(t, setup, Options{})

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	syncOnce(t, f)

	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hub-only', 1)`)
	mustExec(t, f.replica.DB, `INSERT INTO product (id, category_id, name, price) VALUES (2, 1, 'from-replica', 2)`)

	syncOnce(t, f)

	assert.Equal(t, 2, count(t, f.hub.DB, "product"))
	assert.Equal(t, 1, count(t, f.replica.DB, "product"))
	assert.Equal(t, "from-replica", productName(t, f.replica.DB, 2))
}

// TestSynchronize_DownloadOnlyDirection checks a download_only table pulls
// hub changes but never uploads local edits.
func TestSynchronize_DownloadOnlyDirection(t *testing.T) {
	setup := models.SyncSetup{Tables: []models.SetupTable{
		{TableName: "product_category"},
		{TableName: "product", Direction: models.DownloadOnly},
	}}
	f := newFixture(t, setup, Options{})

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'from-hub', 1)`)
	syncOnce(t, f)

	assert.Equal(t, 1, count(t, f.replica.DB, "product"))

	mustExec(t, f.replica.DB, `INSERT INTO product (id, category_id, name, price) VALUES (2, 1, 'local-only', 2)`)
	syncOnce(t, f)

	assert.Equal(t, 1, count(t, f.hub.DB, "product"))
	assert.Equal(t, 2, count(t, f.replica.DB, "product"))
}

// TestSynchronize_Reinitialize wipes the replica, dropping a local pending
// change, and rebuilds it from a full download.
func TestSynchronize_Reinitialize(t *testing.T) {
	f := newFixture(t, retailSetup(), Options{})

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10)`)
	syncOnce(t, f)

	// A local change that reinitialize must discard.
	mustExec(t, f.replica.DB, `INSERT INTO product (id, category_id, name, price) VALUES (50, 1, 'pending', 5)`)

	result, err := f.agent.Synchronize(context.Background(), models.SyncTypeReinitialize)
	require.NoError(t, err)

	assert.Zero(t, result.TotalChangesUploadedToServer)
	assert.Equal(t, 1, count(t, f.replica.DB, "product"))
	assert.Equal(t, "hammer", productName(t, f.replica.DB, 1))
	assert.Equal(t, 1, count(t, f.hub.DB, "product"))
}

// TestSynchronize_ReinitializeWithUpload pushes a local pending change to
// the hub before the wipe; the full download must bring it back, so the row
// survives on both sides.
func TestSynchronize_ReinitializeWithUpload(t *testing.T) {
	f := newFixture(t, retailSetup(), Options{})

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	syncOnce(t, f)

	// A local change that must not be lost by the rebuild.
	mustExec(t, f.replica.DB, `INSERT INTO product_category (id, name) VALUES (2, 'toys')`)

	result, err := f.agent.Synchronize(context.Background(), models.SyncTypeReinitializeWithUpload)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalChangesUploadedToServer)
	assert.Equal(t, 2, result.TotalChangesDownloaded)
	assert.Equal(t, 2, count(t, f.hub.DB, "product_category"))
	assert.Equal(t, 2, count(t, f.replica.DB, "product_category"))

	categories := result.Tables["product_category"]
	require.NotNil(t, categories)
	assert.Equal(t, 1, categories.ChangesUploaded)
	assert.Equal(t, 1, categories.ChangesAppliedOnServer)
}

// TestSynchronize_OutdatedReinitializeWithUpload recovers an outdated client
// through the upload-then-rebuild path; the pending local row must land on
// the hub and come back with the full download.
func TestSynchronize_OutdatedReinitializeWithUpload(t *testing.T) {
	opts := Options{
		Interceptors: Interceptors{
			OnOutdated: func(_ context.Context, _ string, _, _ int64) models.OutdatedAction {
				return models.OutdatedReinitializeWithUpload
			},
		},
	}
	f := newFixture(t, retailSetup(), opts)

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10)`)
	syncOnce(t, f)

	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (2, 1, 'saw', 20)`)
	mustExec(t, f.hub.DB, `DELETE FROM product WHERE id = 2`)

	p, err := f.hub.Open(context.Background())
	require.NoError(t, err)
	watermark, err := p.CurrentWatermark(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = f.coordinator.DeleteMetadatas(context.Background(), "retail", watermark)
	require.NoError(t, err)

	// Pending at the moment the client learns it is outdated.
	mustExec(t, f.replica.DB, `INSERT INTO product (id, category_id, name, price) VALUES (60, 1, 'chisel', 15)`)

	_, err = f.agent.Synchronize(context.Background(), models.SyncTypeNormal)
	require.NoError(t, err)

	for _, db := range []*sql.DB{f.hub.DB, f.replica.DB} {
		assert.Equal(t, 2, count(t, db, "product"))
		assert.Equal(t, "chisel", productName(t, db, 60))
	}
}

// TestSynchronize_OutdatedAborts runs a metadata cleanup past the client's
// watermark; without an OnOutdated hook the session must fail with the
// out-of-date sentinel.
func TestSynchronize_OutdatedAborts(t *testing.T) {
	f := newFixture(t, retailSetup(), Options{})

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	syncOnce(t, f)

	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10)`)
	mustExec(t, f.hub.DB, `DELETE FROM product WHERE id = 1`)

	p, err := f.hub.Open(context.Background())
	require.NoError(t, err)
	watermark, err := p.CurrentWatermark(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = f.coordinator.DeleteMetadatas(context.Background(), "retail", watermark)
	require.NoError(t, err)

	_, err = f.agent.Synchronize(context.Background(), models.SyncTypeNormal)
	assert.ErrorIs(t, err, ErrOutOfDate)
}

// TestSynchronize_OutdatedReinitializes registers an OnOutdated hook that
// asks for reinitialization; the session must recover and converge.
func TestSynchronize_OutdatedReinitializes(t *testing.T) {
	var hookCalls int
	opts := Options{
		Interceptors: Interceptors{
			OnOutdated: func(_ context.Context, _ string, _, _ int64) models.OutdatedAction {
				hookCalls++
				return models.OutdatedReinitialize
			},
		},
	}
	f := newFixture(t, retailSetup(), opts)

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10)`)
	syncOnce(t, f)

	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (2, 1, 'saw', 20)`)
	mustExec(t, f.hub.DB, `DELETE FROM product WHERE id = 2`)

	p, err := f.hub.Open(context.Background())
	require.NoError(t, err)
	watermark, err := p.CurrentWatermark(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = f.coordinator.DeleteMetadatas(context.Background(), "retail", watermark)
	require.NoError(t, err)

	result, err := f.agent.Synchronize(context.Background(), models.SyncTypeNormal)
	require.NoError(t, err)

	assert.Equal(t, 1, hookCalls)
	assert.NotZero(t, result.TotalChangesDownloaded)
	assert.Equal(t, 1, count(t, f.replica.DB, "product"))
	assert.Equal(t, "hammer", productName(t, f.replica.DB, 1))
}

// TestSynchronize_SnapshotBootstrap provisions the hub, takes a snapshot,
// then lets a brand-new replica bootstrap from it plus the incremental tail.
func TestSynchronize_SnapshotBootstrap(t *testing.T) {
	opts := Options{SnapshotsDirectory: t.TempDir()}
	f := newFixture(t, retailSetup(), opts)

	mustExec(t, f.hub.DB, `INSERT INTO product_category (id, name) VALUES (1, 'tools')`)
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (1, 1, 'hammer', 10), (2, 1, 'saw', 20)`)

	_, err := f.coordinator.EnsureScope(context.Background(), models.EnsureScopeRequest{
		ScopeName: "retail",
		ClientID:  "admin",
		Setup:     retailSetup(),
	})
	require.NoError(t, err)

	_, err = f.coordinator.CreateSnapshot(context.Background(), "retail")
	require.NoError(t, err)

	// A change after the snapshot arrives through the incremental leg.
	mustExec(t, f.hub.DB, `INSERT INTO product (id, category_id, name, price) VALUES (3, 1, 'drill', 80)`)

	result := syncOnce(t, f)

	assert.True(t, result.SnapshotApplied)
	assert.Equal(t, 3, count(t, f.replica.DB, "product"))
	assert.Equal(t, 1, count(t, f.replica.DB, "product_category"))

	// Nothing is re-downloaded afterwards.
	again := syncOnce(t, f)
	assert.Zero(t, again.TotalChangesDownloaded)
}

// TestSyncChanges_IdempotentRetry replays the exact same round trip and
// checks every uploaded row resolves as a zero-effect reapply.
func TestSyncChanges_IdempotentRetry(t *testing.T) {
	f := newFixture(t, retailSetup(), Options{})

	mustExec(t, f.replica.DB, `INSERT INTO product_category (id, name) VALUES (10, 'books')`)
	syncOnce(t, f)

	// Rebuild the same upload the session sent.
	p, err := f.replica.Open(context.Background())
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	scope, err := p.GetScopeInfo(context.Background(), "retail")
	require.NoError(t, err)

	batcher := NewBatcher(Options{}, logger.Nop())
	batch, _, err := NewSelector(p, batcher, logger.Nop()).
		SelectChanges(context.Background(), scope.Schema, 0, ServerOriginID, true)
	require.NoError(t, err)
	require.Equal(t, 1, batch.RowCount())

	req := models.SyncChangesRequest{
		ScopeName:       "retail",
		ClientID:        "client-1",
		ClientWatermark: scope.LastServerWatermark,
		Batch:           batch,
	}

	resp, err := f.coordinator.SyncChanges(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, resp.AppliedOnServer)
	assert.Equal(t, 1, resp.AlreadyAppliedOnServer)

	resp, err = f.coordinator.SyncChanges(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.AlreadyAppliedOnServer)
}

// TestSynchronize_SetupMismatch checks a client asking for a different table
// set than the scope was provisioned with is turned away.
func TestSynchronize_SetupMismatch(t *testing.T) {
	f := newFixture(t, retailSetup(), Options{})
	syncOnce(t, f)

	divergent := models.NewSyncSetup("product")
	other := NewAgent(
		NewLocalOrchestrator(f.replica, Options{}, logger.Nop()),
		f.coordinator, "retail", "client-2", divergent, Options{}, logger.Nop(),
	)

	_, err := other.Synchronize(context.Background(), models.SyncTypeNormal)
	assert.ErrorIs(t, err, ErrSetupMismatch)
}
