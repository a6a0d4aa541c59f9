package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"

	"github.com/opendnssec/opendnssec-sub014/internal/errs"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
)

// SqliteStore is the concrete, sqlite-backed implementation of the
// persistence contract, grounded on tdns/db.go's KeyDB wrapper and
// music/dataops.go's transaction helpers: raw SQL strings, database/sql,
// github.com/mattn/go-sqlite3, one struct wrapping *sql.DB.
type SqliteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite database at path and applies
// the schema, mirroring tdns/db.go's startup sequence.
func Open(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.New(errs.BACKEND, "storage.Open", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errs.New(errs.BACKEND, "storage.Open", fmt.Errorf("applying schema: %w", err))
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM database_version").Scan(&count); err != nil {
		db.Close()
		return nil, errs.New(errs.BACKEND, "storage.Open", err)
	}
	if count == 0 {
		if _, err := db.Exec("INSERT INTO database_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, errs.New(errs.BACKEND, "storage.Open", err)
		}
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error { return s.db.Close() }

func (s *SqliteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.New(errs.BACKEND, "storage.Begin", err)
	}
	return &sqliteTx{tx: tx}, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func checkSQLError(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return errs.New(errs.NOT_FOUND, op, err)
	}
	log.Printf("storage: %s: %v", op, err)
	return errs.New(errs.BACKEND, op, err)
}

// --- Policy ---

func (t *sqliteTx) GetPolicy(id string) (*PolicyRecord, error) {
	const q = `SELECT rev, data FROM policies WHERE id = ?`
	var rev int64
	var blob []byte
	err := t.tx.QueryRow(q, id).Scan(&rev, &blob)
	if err != nil {
		return nil, checkSQLError("GetPolicy", err)
	}
	var p keymodel.Policy
	if err := json.Unmarshal(blob, &p); err != nil {
		return nil, errs.New(errs.BACKEND, "GetPolicy", err)
	}
	return &PolicyRecord{Rev: rev, Entity: &p}, nil
}

func (t *sqliteTx) ListPolicies() ([]*PolicyRecord, error) {
	const q = `SELECT rev, data FROM policies`
	rows, err := t.tx.Query(q)
	if err != nil {
		return nil, checkSQLError("ListPolicies", err)
	}
	defer rows.Close()
	var out []*PolicyRecord
	for rows.Next() {
		var rev int64
		var blob []byte
		if err := rows.Scan(&rev, &blob); err != nil {
			return nil, checkSQLError("ListPolicies", err)
		}
		var p keymodel.Policy
		if err := json.Unmarshal(blob, &p); err != nil {
			return nil, errs.New(errs.BACKEND, "ListPolicies", err)
		}
		out = append(out, &PolicyRecord{Rev: rev, Entity: &p})
	}
	return out, nil
}

func (t *sqliteTx) InsertPolicy(p *keymodel.Policy) (*PolicyRecord, error) {
	blob, err := json.Marshal(p)
	if err != nil {
		return nil, errs.New(errs.BACKEND, "InsertPolicy", err)
	}
	const q = `INSERT INTO policies (id, rev, data) VALUES (?, 1, ?)`
	if _, err := t.tx.Exec(q, p.ID, blob); err != nil {
		return nil, checkSQLError("InsertPolicy", err)
	}
	return &PolicyRecord{Rev: 1, Entity: p}, nil
}

func (t *sqliteTx) UpdatePolicy(rec *PolicyRecord) error {
	blob, err := json.Marshal(rec.Entity)
	if err != nil {
		return errs.New(errs.BACKEND, "UpdatePolicy", err)
	}
	const q = `UPDATE policies SET rev = rev + 1, data = ? WHERE id = ? AND rev = ?`
	res, err := t.tx.Exec(q, blob, rec.Entity.ID, rec.Rev)
	if err != nil {
		return checkSQLError("UpdatePolicy", err)
	}
	return checkOptimisticUpdate("UpdatePolicy", res)
}

func (t *sqliteTx) DeletePolicy(id string) error {
	_, err := t.tx.Exec(`DELETE FROM policies WHERE id = ?`, id)
	return checkSQLError("DeletePolicy", err)
}

func checkOptimisticUpdate(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return checkSQLError(op, err)
	}
	if n == 0 {
		return errs.New(errs.CONFLICT, op, fmt.Errorf("row changed since snapshot was read"))
	}
	return nil
}

// --- Zone ---

func (t *sqliteTx) GetZone(name string) (*ZoneRecord, error) {
	const q = `SELECT rev, pending_generate, data FROM zones WHERE name = ?`
	var rev int64
	var pending int
	var blob []byte
	if err := t.tx.QueryRow(q, name).Scan(&rev, &pending, &blob); err != nil {
		return nil, checkSQLError("GetZone", err)
	}
	var z keymodel.Zone
	if err := json.Unmarshal(blob, &z); err != nil {
		return nil, errs.New(errs.BACKEND, "GetZone", err)
	}
	return &ZoneRecord{Versioned: Versioned[*keymodel.Zone]{Rev: rev, Entity: &z}, PendingGenerate: pending != 0}, nil
}

func (t *sqliteTx) ListZones() ([]*ZoneRecord, error) {
	const q = `SELECT rev, pending_generate, data FROM zones`
	rows, err := t.tx.Query(q)
	if err != nil {
		return nil, checkSQLError("ListZones", err)
	}
	defer rows.Close()
	var out []*ZoneRecord
	for rows.Next() {
		var rev int64
		var pending int
		var blob []byte
		if err := rows.Scan(&rev, &pending, &blob); err != nil {
			return nil, checkSQLError("ListZones", err)
		}
		var z keymodel.Zone
		if err := json.Unmarshal(blob, &z); err != nil {
			return nil, errs.New(errs.BACKEND, "ListZones", err)
		}
		out = append(out, &ZoneRecord{Versioned: Versioned[*keymodel.Zone]{Rev: rev, Entity: &z}, PendingGenerate: pending != 0})
	}
	return out, nil
}

func (t *sqliteTx) InsertZone(z *keymodel.Zone) (*ZoneRecord, error) {
	blob, err := json.Marshal(z)
	if err != nil {
		return nil, errs.New(errs.BACKEND, "InsertZone", err)
	}
	const q = `INSERT INTO zones (name, rev, pending_generate, data) VALUES (?, 1, 0, ?)`
	if _, err := t.tx.Exec(q, z.Name, blob); err != nil {
		return nil, checkSQLError("InsertZone", err)
	}
	return &ZoneRecord{Versioned: Versioned[*keymodel.Zone]{Rev: 1, Entity: z}}, nil
}

func (t *sqliteTx) UpdateZone(rec *ZoneRecord) error {
	blob, err := json.Marshal(rec.Entity)
	if err != nil {
		return errs.New(errs.BACKEND, "UpdateZone", err)
	}
	const q = `UPDATE zones SET rev = rev + 1, pending_generate = ?, data = ? WHERE name = ? AND rev = ?`
	pending := 0
	if rec.PendingGenerate {
		pending = 1
	}
	res, err := t.tx.Exec(q, pending, blob, rec.Entity.Name, rec.Rev)
	if err != nil {
		return checkSQLError("UpdateZone", err)
	}
	return checkOptimisticUpdate("UpdateZone", res)
}

func (t *sqliteTx) DeleteZone(name string) error {
	_, err := t.tx.Exec(`DELETE FROM zones WHERE name = ?`, name)
	if err != nil {
		return checkSQLError("DeleteZone", err)
	}
	_, err = t.tx.Exec(`DELETE FROM key_data WHERE zone = ?`, name)
	return checkSQLError("DeleteZone", err)
}

// --- KeyData ---

func (t *sqliteTx) ListKeys(zone string) ([]*KeyDataRecord, error) {
	const q = `SELECT rev, data FROM key_data WHERE zone = ?`
	rows, err := t.tx.Query(q, zone)
	if err != nil {
		return nil, checkSQLError("ListKeys", err)
	}
	defer rows.Close()
	var out []*KeyDataRecord
	for rows.Next() {
		var rev int64
		var blob []byte
		if err := rows.Scan(&rev, &blob); err != nil {
			return nil, checkSQLError("ListKeys", err)
		}
		var k keymodel.Key
		if err := json.Unmarshal(blob, &k); err != nil {
			return nil, errs.New(errs.BACKEND, "ListKeys", err)
		}
		out = append(out, &KeyDataRecord{Versioned: Versioned[*keymodel.Key]{Rev: rev, Entity: &k}, Zone: zone})
	}
	return out, nil
}

func (t *sqliteTx) GetKey(zone, locator string) (*KeyDataRecord, error) {
	const q = `SELECT rev, data FROM key_data WHERE zone = ? AND locator = ?`
	var rev int64
	var blob []byte
	if err := t.tx.QueryRow(q, zone, locator).Scan(&rev, &blob); err != nil {
		return nil, checkSQLError("GetKey", err)
	}
	var k keymodel.Key
	if err := json.Unmarshal(blob, &k); err != nil {
		return nil, errs.New(errs.BACKEND, "GetKey", err)
	}
	return &KeyDataRecord{Versioned: Versioned[*keymodel.Key]{Rev: rev, Entity: &k}, Zone: zone}, nil
}

func (t *sqliteTx) InsertKey(zone string, k *keymodel.Key) (*KeyDataRecord, error) {
	blob, err := json.Marshal(k)
	if err != nil {
		return nil, errs.New(errs.BACKEND, "InsertKey", err)
	}
	const q = `INSERT INTO key_data (zone, locator, rev, data) VALUES (?, ?, 1, ?)`
	if _, err := t.tx.Exec(q, zone, k.Locator, blob); err != nil {
		return nil, checkSQLError("InsertKey", err)
	}
	return &KeyDataRecord{Versioned: Versioned[*keymodel.Key]{Rev: 1, Entity: k}, Zone: zone}, nil
}

func (t *sqliteTx) UpdateKey(rec *KeyDataRecord) error {
	blob, err := json.Marshal(rec.Entity)
	if err != nil {
		return errs.New(errs.BACKEND, "UpdateKey", err)
	}
	const q = `UPDATE key_data SET rev = rev + 1, data = ? WHERE zone = ? AND locator = ? AND rev = ?`
	res, err := t.tx.Exec(q, blob, rec.Zone, rec.Entity.Locator, rec.Rev)
	if err != nil {
		return checkSQLError("UpdateKey", err)
	}
	return checkOptimisticUpdate("UpdateKey", res)
}

func (t *sqliteTx) DeleteKey(zone, locator string) error {
	_, err := t.tx.Exec(`DELETE FROM key_data WHERE zone = ? AND locator = ?`, zone, locator)
	return checkSQLError("DeleteKey", err)
}

// --- HsmKey ---

func (t *sqliteTx) ListHsmKeys() ([]*HsmKeyRecord, error) {
	const q = `SELECT rev, data FROM hsm_keys`
	rows, err := t.tx.Query(q)
	if err != nil {
		return nil, checkSQLError("ListHsmKeys", err)
	}
	defer rows.Close()
	var out []*HsmKeyRecord
	for rows.Next() {
		var rev int64
		var blob []byte
		if err := rows.Scan(&rev, &blob); err != nil {
			return nil, checkSQLError("ListHsmKeys", err)
		}
		var h HsmKey
		if err := json.Unmarshal(blob, &h); err != nil {
			return nil, errs.New(errs.BACKEND, "ListHsmKeys", err)
		}
		out = append(out, &HsmKeyRecord{Versioned[HsmKey]{Rev: rev, Entity: h}})
	}
	return out, nil
}

func (t *sqliteTx) InsertHsmKey(k HsmKey) (*HsmKeyRecord, error) {
	blob, err := json.Marshal(k)
	if err != nil {
		return nil, errs.New(errs.BACKEND, "InsertHsmKey", err)
	}
	const q = `INSERT INTO hsm_keys (locator, rev, data) VALUES (?, 1, ?)`
	if _, err := t.tx.Exec(q, k.Locator, blob); err != nil {
		return nil, checkSQLError("InsertHsmKey", err)
	}
	return &HsmKeyRecord{Versioned[HsmKey]{Rev: 1, Entity: k}}, nil
}

func (t *sqliteTx) UpdateHsmKey(rec *HsmKeyRecord) error {
	blob, err := json.Marshal(rec.Entity)
	if err != nil {
		return errs.New(errs.BACKEND, "UpdateHsmKey", err)
	}
	const q = `UPDATE hsm_keys SET rev = rev + 1, data = ? WHERE locator = ? AND rev = ?`
	res, err := t.tx.Exec(q, blob, rec.Entity.Locator, rec.Rev)
	if err != nil {
		return checkSQLError("UpdateHsmKey", err)
	}
	return checkOptimisticUpdate("UpdateHsmKey", res)
}

func (t *sqliteTx) DeleteHsmKey(locator string) error {
	_, err := t.tx.Exec(`DELETE FROM hsm_keys WHERE locator = ?`, locator)
	return checkSQLError("DeleteHsmKey", err)
}

func (t *sqliteTx) GetDatabaseVersion() (DatabaseVersion, error) {
	var v int
	err := t.tx.QueryRow(`SELECT version FROM database_version LIMIT 1`).Scan(&v)
	if err != nil {
		return DatabaseVersion{}, checkSQLError("GetDatabaseVersion", err)
	}
	return DatabaseVersion{Version: v}, nil
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return checkSQLError("Commit", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return checkSQLError("Rollback", err)
	}
	return nil
}
