package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendnssec/opendnssec-sub014/internal/errs"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
)

func openTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "enforcer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSqliteStore_PolicyRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	p := &keymodel.Policy{ID: "default", Name: "default policy"}
	rec, err := tx.InsertPolicy(p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Rev)
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	got, err := tx.GetPolicy("default")
	require.NoError(t, err)
	assert.Equal(t, "default policy", got.Entity.Name)
	require.NoError(t, tx.Rollback())
}

func TestSqliteStore_UpdateConflictOnStaleRev(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	rec, err := tx.InsertPolicy(&keymodel.Policy{ID: "p1", Name: "one"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, _ = s.Begin(ctx)
	rec.Entity.Name = "two"
	require.NoError(t, tx.UpdatePolicy(rec))
	require.NoError(t, tx.Commit())

	// rec.Rev is now stale (rev advanced to 2 in storage); updating again
	// with the same snapshot must fail with CONFLICT.
	tx, _ = s.Begin(ctx)
	rec.Entity.Name = "three"
	err = tx.UpdatePolicy(rec)
	require.Error(t, err)
	assert.Equal(t, errs.CONFLICT, errs.KindOf(err))
	_ = tx.Rollback()
}

func TestSqliteStore_ZoneAndKeyLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	_, err := tx.InsertZone(&keymodel.Zone{Name: "example.com", PolicyID: "default"})
	require.NoError(t, err)
	krec, err := tx.InsertKey("example.com", &keymodel.Key{Locator: "loc-1", Role: keymodel.RoleZSK})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, _ = s.Begin(ctx)
	keys, err := tx.ListKeys("example.com")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "loc-1", keys[0].Entity.Locator)

	require.NoError(t, tx.DeleteKey("example.com", krec.Entity.Locator))
	keys, err = tx.ListKeys("example.com")
	require.NoError(t, err)
	assert.Empty(t, keys)
	require.NoError(t, tx.Commit())
}

func TestSqliteStore_DeleteZoneCascadesKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	_, err := tx.InsertZone(&keymodel.Zone{Name: "example.org"})
	require.NoError(t, err)
	_, err = tx.InsertKey("example.org", &keymodel.Key{Locator: "loc-2"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, _ = s.Begin(ctx)
	require.NoError(t, tx.DeleteZone("example.org"))
	require.NoError(t, tx.Commit())

	tx, _ = s.Begin(ctx)
	keys, err := tx.ListKeys("example.org")
	require.NoError(t, err)
	assert.Empty(t, keys)
	_, err = tx.GetZone("example.org")
	assert.Error(t, err)
	_ = tx.Rollback()
}

func TestSqliteStore_DatabaseVersion(t *testing.T) {
	s := openTestStore(t)
	tx, _ := s.Begin(context.Background())
	v, err := tx.GetDatabaseVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v.Version)
	_ = tx.Rollback()
}
