// Package storage implements the typed-entity persistence contract of
// spec.md §6.2: policy (carrying its policy_keys), zone, key_data
// (carrying key_state and key_dependency), hsm_key and database_version,
// with optimistic concurrency via a per-row rev counter. The operations
// each entity offers are those listed on Tx.
package storage

import "github.com/opendnssec/opendnssec-sub014/internal/keymodel"

// Versioned wraps an entity with the rev counter spec.md §6.2 uses for
// optimistic concurrency: Update fails with a CONFLICT error (see
// internal/errs) if the stored rev doesn't match Rev.
type Versioned[T any] struct {
	Rev    int64
	Entity T
}

// PolicyRecord is the persisted form of keymodel.Policy.
type PolicyRecord = Versioned[*keymodel.Policy]

// ZoneRecord is the persisted form of keymodel.Zone, spec.md §3.6 plus the
// FSM/process-attachment style bookkeeping fields the teacher's zones
// table carries (fsm, fsmsigner) — here narrowed to what the enforcer and
// signer actually need: which async task (if any) currently owns the
// zone, so a "generate" deficit doesn't get scheduled twice concurrently.
type ZoneRecord struct {
	Versioned[*keymodel.Zone]
	PendingGenerate bool // true while an hsm-key-generate task is outstanding
}

// KeyDataRecord is the persisted form of one keymodel.Key within a zone.
type KeyDataRecord struct {
	Versioned[*keymodel.Key]
	Zone string
}

// HsmKeyRecord records which repository a locator was generated in and
// whether it is still believed to exist in the keystore, spec.md §6.2
// "hsm_key" entity — kept separate from KeyDataRecord because a zone may
// be deleted while its keys still need HSM-side cleanup.
type HsmKeyRecord struct {
	Versioned[HsmKey]
}

type HsmKey struct {
	Locator    string
	Repository string
	Algorithm  uint8
	Bits       int
	Backup     BackupState
}

// BackupState tracks the "backup list|prepare|commit|rollback" command
// surface of spec.md §6.3.
type BackupState int

const (
	BackupNone BackupState = iota
	BackupRequiredToBeBackedUp
	BackupRequested
	BackupDone
)

func (b BackupState) String() string {
	switch b {
	case BackupNone:
		return "none"
	case BackupRequiredToBeBackedUp:
		return "required_to_be_backed_up"
	case BackupRequested:
		return "requested"
	case BackupDone:
		return "done"
	default:
		return "unknown"
	}
}

// DatabaseVersion is the schema-version marker row, spec.md §6.2.
type DatabaseVersion struct {
	Version int
}
