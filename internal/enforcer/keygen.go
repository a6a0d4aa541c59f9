package enforcer

import (
	"context"
	"log"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/errs"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
	"github.com/opendnssec/opendnssec-sub014/internal/keystore"
	"github.com/opendnssec/opendnssec-sub014/internal/schedule"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
)

// generateJob is the userdata carried by an "hsm-key-generate" task,
// spec.md §4.6 step 2 (the factory).
type generateJob struct {
	Zone      string
	PolicyKey keymodel.PolicyKey
}

func (e *Enforcer) scheduleKeyGenerate(zone string, pk keymodel.PolicyKey) {
	typ := TaskKeyGenerate + "/" + pk.Role.String()
	t := task.New(zone, task.EnforcerClass, typ, e.generateCallback, &generateJob{Zone: zone, PolicyKey: pk}, nil, clock.Immediately)
	if err := e.Schedule.Push(t); err != nil && err != schedule.ErrDuplicate {
		log.Printf("enforcer: zone %q: scheduling %s: %v", zone, typ, err)
	}
}

func (e *Enforcer) generateCallback(owner string, userdata interface{}, ctx task.Context) task.Hint {
	job, ok := userdata.(*generateJob)
	if !ok {
		log.Printf("enforcer: hsm-key-generate: bad userdata for owner %q", owner)
		return task.SUCCESS
	}
	if err := e.runGenerate(ctx.Now, job); err != nil {
		switch errs.KindOf(err) {
		case errs.CONFLICT:
			return task.PROMPTLY
		case errs.NOT_FOUND:
			return task.SUCCESS
		default:
			log.Printf("enforcer: zone %q: hsm-key-generate %s: %v", owner, job.PolicyKey.Role, err)
			return task.DEFER
		}
	}
	return task.SUCCESS
}

// runGenerate creates one new key for job.PolicyKey's role, links any
// currently-retiring key of the same role to it as a successor dependency
// (spec.md §4.6 "Cross-key dependency"), and clears the zone's
// PendingGenerate flag so the next enforce pass can detect a fresh
// deficit if one remains.
func (e *Enforcer) runGenerate(now int64, job *generateJob) error {
	locator, err := e.Keystore.Generate(job.PolicyKey.RepositoryName, job.PolicyKey.Algorithm, job.PolicyKey.Bits)
	if err != nil {
		return translateKeystoreErr(err)
	}

	handle, err := e.Keystore.FindByLocator(locator)
	if err != nil {
		return translateKeystoreErr(err)
	}
	keytag := computeKeytag(handle, job.PolicyKey.Algorithm, job.PolicyKey.Role)

	ctx := context.Background()
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	zrec, err := tx.GetZone(job.Zone)
	if err != nil {
		return err
	}
	zone := zrec.Entity

	prec, err := tx.GetPolicy(zone.PolicyID)
	if err != nil {
		return err
	}
	newKey := newKeyForPolicy(prec.Entity, job.PolicyKey, locator, keytag, now)

	for _, k := range zone.Keys {
		if k.Role != job.PolicyKey.Role || k.Introducing {
			continue
		}
		for _, class := range newKey.AllClasses() {
			if !hasDependency(k.Dependencies, locator, class) {
				k.Dependencies = append(k.Dependencies, keymodel.Dependency{KeyLocator: locator, Class: class})
			}
		}
	}

	zone.Keys = append(zone.Keys, newKey)
	zrec.PendingGenerate = false

	if _, err := tx.InsertKey(job.Zone, newKey); err != nil {
		return err
	}
	for _, k := range zone.Keys {
		if k.Locator == newKey.Locator {
			continue
		}
		krec, err := tx.GetKey(job.Zone, k.Locator)
		if err != nil {
			return err
		}
		krec.Entity = k
		if err := tx.UpdateKey(krec); err != nil {
			return err
		}
	}
	if err := tx.UpdateZone(zrec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	log.Printf("enforcer: zone %q: generated %s key %s (algorithm %d)", job.Zone, job.PolicyKey.Role, locator, job.PolicyKey.Algorithm)
	return nil
}

func hasDependency(deps []keymodel.Dependency, locator string, class keymodel.RecordClass) bool {
	for _, d := range deps {
		if d.KeyLocator == locator && d.Class == class {
			return true
		}
	}
	return false
}

// newKeyForPolicy builds the Hidden-state Key record a fresh generation
// produces, spec.md §3.5: every tracked class starts hidden and is
// introduced by the next enforce pass (processKeyClass's hidden->rumoured
// step), never here directly — generation only manufactures the key
// material. Each class's TTL is seeded from the policy so later
// admissibility checks use the record's actual published TTL rather than
// zero; the policy has no separate "DNSKEY TTL" field, so
// Signature.MaxZoneTTL stands in for DNSKEY/RRSIG-DNSKEY/RRSIG the same
// way it bounds every other record's TTL in the zone, and Parent.DSTTL
// covers DS (see DESIGN.md).
func newKeyForPolicy(policy *keymodel.Policy, pk keymodel.PolicyKey, locator string, keytag uint16, now int64) *keymodel.Key {
	zoneTTL := policy.Signature.MaxZoneTTL
	k := &keymodel.Key{
		Locator:     locator,
		Algorithm:   pk.Algorithm,
		Bits:        pk.Bits,
		Role:        pk.Role,
		Keytag:      keytag,
		Inception:   now,
		Introducing: true,
		DSAtParent:  keymodel.DSUnsubmitted,
		DS:          keymodel.SubState{State: keymodel.Hidden, LastChange: now, TTL: policy.Parent.DSTTL, Minimize: pk.Minimize},
		DNSKEY:      keymodel.SubState{State: keymodel.Hidden, LastChange: now, TTL: zoneTTL, Minimize: pk.Minimize},
		RRSIGDNSKEY: keymodel.SubState{State: keymodel.Hidden, LastChange: now, TTL: zoneTTL, Minimize: pk.Minimize},
		RRSIG:       keymodel.SubState{State: keymodel.NA, LastChange: now},
	}
	if pk.Role != keymodel.RoleKSK {
		k.RRSIG = keymodel.SubState{State: keymodel.Hidden, LastChange: now, TTL: zoneTTL, Minimize: pk.Minimize}
	}
	return k
}

func translateKeystoreErr(err error) error {
	var kerr *keystore.Error
	if e, ok := err.(*keystore.Error); ok {
		kerr = e
	}
	if kerr == nil {
		return errs.New(errs.BACKEND, "keystore", err)
	}
	switch kerr.Kind {
	case keystore.NotFound:
		return errs.New(errs.NOT_FOUND, kerr.Op, kerr.Err)
	case keystore.IO:
		return errs.New(errs.IO, kerr.Op, kerr.Err)
	default:
		return errs.New(errs.BACKEND, kerr.Op, kerr.Err)
	}
}

// computeKeytag builds a placeholder-owner DNSKEY RR via
// keystore.BuildDNSKEY purely to derive its keytag, using the same flags
// (257 for KSK/CSK, 256 otherwise) the published DNSKEY carries; the real
// owner name is filled in again by the signer driver when it actually
// publishes the RR (internal/signer).
func computeKeytag(handle keystore.Handle, algorithm uint8, role keymodel.KeyRole) uint16 {
	flags := uint16(256)
	if role == keymodel.RoleKSK || role == keymodel.RoleCSK {
		flags = 257
	}
	rr, err := keystore.BuildDNSKEY(".", handle, algorithm, flags, 0)
	if err != nil {
		return 0
	}
	return rr.KeyTag()
}
