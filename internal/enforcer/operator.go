package enforcer

import (
	"context"
	"fmt"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/errs"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
	"github.com/opendnssec/opendnssec-sub014/internal/schedule"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
)

// The methods in this file are the decision-procedure side of spec.md
// §6.3's operator command surface: the commandsocket package reaches the
// enforcer through these entry points (and RegisterZone), never through
// the task callbacks directly.

// GenerateKeyNow forces an immediate "hsm-key-generate" task for role,
// bypassing the deficit computation in runEnforce — spec.md §6.3 "key
// generate". role must appear in the zone's policy; the policy-key's own
// algorithm/bits/repository are used, matching a deficit-triggered
// generation.
func (e *Enforcer) GenerateKeyNow(zoneName string, role keymodel.KeyRole) error {
	ctx := context.Background()
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	zrec, err := tx.GetZone(zoneName)
	if err != nil {
		return err
	}
	prec, err := tx.GetPolicy(zrec.Entity.PolicyID)
	if err != nil {
		return err
	}
	for _, pk := range prec.Entity.Keys {
		if pk.Role == role {
			e.scheduleKeyGenerate(zoneName, pk)
			return nil
		}
	}
	return errs.New(errs.CONFIG, "operator.GenerateKeyNow", fmt.Errorf("policy %q has no %s policy-key", prec.Entity.ID, role))
}

// RequestRollover sets the zone's forced-rollover flag for role, spec.md
// §4.6 "Pending-rollover flags" / §6.3 "key rollover", and wakes the
// zone's enforce task so the rollover starts on the next pass instead of
// waiting for the zone's regular interval.
func (e *Enforcer) RequestRollover(zoneName string, role keymodel.KeyRole) error {
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

	zrec, err := tx.GetZone(zoneName)
	if err != nil {
		return err
	}
	switch role {
	case keymodel.RoleKSK:
		zrec.Entity.RollKSKNow = true
	case keymodel.RoleZSK:
		zrec.Entity.RollZSKNow = true
	case keymodel.RoleCSK:
		zrec.Entity.RollCSKNow = true
	}
	if err := tx.UpdateZone(zrec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	e.wakeEnforce(zoneName)
	return nil
}

// MarkDSSeen records that the parent now serves locator's DS record,
// spec.md §6.3 "key ds-seen" and §8 Scenario B: the next enforce pass
// advances DS to Omnipresent and, via the usual dependency guard, can then
// retire the predecessor's DS.
func (e *Enforcer) MarkDSSeen(zoneName, locator string) error {
	return e.setDSAtParent(zoneName, locator, keymodel.DSSeen)
}

// MarkDSGone records that the parent no longer serves locator's DS
// record, spec.md §6.3 "key ds-gone": the companion of ds-seen for the
// withdrawal side of a rollover.
func (e *Enforcer) MarkDSGone(zoneName, locator string) error {
	return e.setDSAtParent(zoneName, locator, keymodel.DSRetracted)
}

// MarkDSSubmitted records that the operator has handed locator's DS off
// to the registrar out of band, spec.md §6.3 "key ds-submit" — the manual
// counterpart of the automatic ds-submit hook runEnforce fires when DNSKEY
// first reaches Omnipresent.
func (e *Enforcer) MarkDSSubmitted(zoneName, locator string) error {
	return e.setDSAtParent(zoneName, locator, keymodel.DSSubmitted)
}

// MarkDSRetract records that the operator is withdrawing locator's DS out
// of band, spec.md §6.3 "key ds-retract" — the manual counterpart of the
// automatic ds-retract hook.
func (e *Enforcer) MarkDSRetract(zoneName, locator string) error {
	return e.setDSAtParent(zoneName, locator, keymodel.DSRetract)
}

func (e *Enforcer) setDSAtParent(zoneName, locator string, state keymodel.DSAtParent) error {
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

	zrec, err := tx.GetZone(zoneName)
	if err != nil {
		return err
	}
	k := zrec.Entity.KeyByLocator(locator)
	if k == nil {
		return errs.New(errs.NOT_FOUND, "operator.setDSAtParent", fmt.Errorf("zone %q has no key %q", zoneName, locator))
	}
	k.DSAtParent = state

	krec, err := tx.GetKey(zoneName, locator)
	if err != nil {
		return err
	}
	krec.Entity = k
	if err := tx.UpdateKey(krec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	e.wakeEnforce(zoneName)
	return nil
}

// PurgeKey forcibly removes a key from the keystore and persistence
// regardless of its current sub-state, spec.md §6.3 "key purge" — an
// operator override of the FullyHidden() purge guard runEnforce applies
// on its own. Used to recover from a key stuck in a class it will never
// leave (e.g. DS never withdrawn because the parent was never updated).
func (e *Enforcer) PurgeKey(zoneName, locator string) error {
	if h, err := e.Keystore.FindByLocator(locator); err == nil {
		if err := e.Keystore.Remove(h); err != nil {
			return translateKeystoreErr(err)
		}
	}

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

	zrec, err := tx.GetZone(zoneName)
	if err != nil {
		return err
	}
	zrec.Entity.Keys = removeKeyByLocator(zrec.Entity.Keys, locator)
	if err := tx.UpdateZone(zrec); err != nil {
		return err
	}
	if err := tx.DeleteKey(zoneName, locator); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// wakeEnforce re-runs zoneName's enforce task at once instead of waiting
// for Schedule.Flush or the task's own backoff, by cancelling and
// re-pushing it at clock.Immediately. Used after any operator mutation
// that should be reflected without delay, spec.md §6.3.
func (e *Enforcer) wakeEnforce(zoneName string) {
	tr := task.Triple{Owner: zoneName, Class: task.EnforcerClass, Type: TaskEnforce}
	e.Schedule.Cancel(tr)
	t := task.New(zoneName, task.EnforcerClass, TaskEnforce, e.enforceCallback, nil, nil, clock.Immediately)
	if err := e.Schedule.Push(t); err != nil && err != schedule.ErrDuplicate {
		_ = err // Push only fails on a duplicate triple, which Cancel above just cleared
	}
}
