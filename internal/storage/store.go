package storage

import (
	"context"

	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
)

// Store is the persistence contract of spec.md §6.2: a single pass of the
// enforcer takes a consistent snapshot and commits as one unit. Callers
// obtain a Tx, read and mutate entities through it, and Commit once. An
// Update* call whose rev no longer matches the stored row fails with an
// *internal/errs.Error with Kind == CONFLICT; the enforcer's task
// callbacks answer that with PROMPTLY.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is a single consistent-snapshot transaction over every entity kind
// spec.md §6.2 names.
type Tx interface {
	// Policy / PolicyKey (policy carries its PolicyKeys inline, spec.md §3.4).
	GetPolicy(id string) (*PolicyRecord, error)
	ListPolicies() ([]*PolicyRecord, error)
	InsertPolicy(p *keymodel.Policy) (*PolicyRecord, error)
	UpdatePolicy(rec *PolicyRecord) error
	DeletePolicy(id string) error

	// Zone
	GetZone(name string) (*ZoneRecord, error)
	ListZones() ([]*ZoneRecord, error)
	InsertZone(z *keymodel.Zone) (*ZoneRecord, error)
	UpdateZone(rec *ZoneRecord) error
	DeleteZone(name string) error

	// KeyData / KeyState (KeyState is folded into keymodel.Key's SubState
	// fields, spec.md §3.5, rather than a separate table join at this
	// layer — the enforcer never needs key data without its states).
	ListKeys(zone string) ([]*KeyDataRecord, error)
	GetKey(zone, locator string) (*KeyDataRecord, error)
	InsertKey(zone string, k *keymodel.Key) (*KeyDataRecord, error)
	UpdateKey(rec *KeyDataRecord) error
	DeleteKey(zone, locator string) error

	// HsmKey
	ListHsmKeys() ([]*HsmKeyRecord, error)
	InsertHsmKey(k HsmKey) (*HsmKeyRecord, error)
	UpdateHsmKey(rec *HsmKeyRecord) error
	DeleteHsmKey(locator string) error

	GetDatabaseVersion() (DatabaseVersion, error)

	Commit() error
	Rollback() error
}
