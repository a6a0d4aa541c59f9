// Package enforcer implements the per-zone key-state decision procedure of
// spec.md §4.6: given a zone's policy and current key set, it walks each
// key's record-class sub-state machines under admissibility and
// cross-key-dependency guards, drives DS-submit/retract side effects, and
// computes the zone's next wake time.
package enforcer

import (
	"context"
	"log"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/errs"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
	"github.com/opendnssec/opendnssec-sub014/internal/keystore"
	"github.com/opendnssec/opendnssec-sub014/internal/schedule"
	"github.com/opendnssec/opendnssec-sub014/internal/storage"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
)

// EnforcerClass/enforce/hsm-key-generate are the task triple components
// this package schedules under, spec.md §4.2/§4.6.
const (
	TaskEnforce    = "enforce"
	TaskKeyGenerate = "hsm-key-generate"
)

// Enforcer wires the policy/key-state decision procedure to its
// collaborators: persistence, the keystore, the schedule it runs on, and
// the external DS-submit/retract hook.
type Enforcer struct {
	Store    storage.Store
	Keystore keystore.Keystore
	Schedule *schedule.Schedule
	Hook     DSHookRunner
	Clock    clock.Clock

	DSSubmitCmd  string
	DSRetractCmd string

	// SignconfHook, if set, is called whenever a pass flags
	// signconf_needs_writing on a zone (spec.md §4.6); the daemon wires
	// this to the signer driver's "signconf" task once that component is
	// running. Left nil, enforcement still proceeds — only the
	// downstream signing pass is skipped.
	SignconfHook func(zone string)
}

// New builds an Enforcer. hook may be nil, in which case ShellDSHook{} is
// used.
func New(store storage.Store, ks keystore.Keystore, sched *schedule.Schedule, hook DSHookRunner, c clock.Clock) *Enforcer {
	if hook == nil {
		hook = ShellDSHook{}
	}
	if c == nil {
		c = clock.Default
	}
	return &Enforcer{Store: store, Keystore: ks, Schedule: sched, Hook: hook, Clock: c}
}

// RegisterZone schedules zone's "enforce" task to run immediately (spec.md
// §4.2/§4.6: cold-start behavior of Scenario A). Re-registering an
// already-scheduled zone is a no-op.
func (e *Enforcer) RegisterZone(zone string) error {
	t := task.New(zone, task.EnforcerClass, TaskEnforce, e.enforceCallback, nil, nil, clock.Immediately)
	if err := e.Schedule.Push(t); err != nil && err != schedule.ErrDuplicate {
		return err
	}
	return nil
}

func (e *Enforcer) enforceCallback(owner string, _ interface{}, ctx task.Context) task.Hint {
	hint, err := e.runEnforce(ctx.Now, owner)
	if err == nil {
		return hint
	}
	switch errs.KindOf(err) {
	case errs.CONFLICT:
		return task.PROMPTLY
	case errs.NOT_FOUND:
		log.Printf("enforcer: zone %q no longer exists, dropping enforce task", owner)
		return task.SUCCESS
	case errs.CONFIG:
		log.Printf("enforcer: zone %q: unusable policy/zonelist: %v", owner, err)
		return task.SUCCESS
	default:
		log.Printf("enforcer: zone %q: %v", owner, err)
		return task.DEFER
	}
}

// runEnforce performs one pass of spec.md §4.6 over zone within a single
// persistence transaction, returning the reschedule hint for the calling
// task.
func (e *Enforcer) runEnforce(now int64, zoneName string) (task.Hint, error) {
	ctx := context.Background()
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	zrec, err := tx.GetZone(zoneName)
	if err != nil {
		return 0, err
	}
	prec, err := tx.GetPolicy(zrec.Entity.PolicyID)
	if err != nil {
		return 0, err
	}
	zone, policy := zrec.Entity, prec.Entity

	// key_data holds each key's current state (operator ds-seen/ds-gone
	// actions update it directly), so the pass works on those rows.
	krecs, err := tx.ListKeys(zoneName)
	if err != nil {
		return 0, err
	}
	zone.Keys = make([]*keymodel.Key, 0, len(krecs))
	for _, kr := range krecs {
		zone.Keys = append(zone.Keys, kr.Entity)
	}

	changed := e.applyPendingRollovers(now, zone, policy)

	deficits := computeDeficit(zone, policy)
	if len(deficits) > 0 && !zrec.PendingGenerate {
		for _, pk := range deficits {
			e.scheduleKeyGenerate(zoneName, pk)
		}
		zrec.PendingGenerate = true
		changed = true
	}

	var hooks []hookJob
	var purge []string
	for _, k := range zone.Keys {
		for _, class := range k.AllClasses() {
			res := processKeyClass(now, zone, policy, k, class)
			if res.changed {
				changed = true
			}
			if res.dsHookKind != dsHookNone {
				hooks = append(hooks, hookJob{kind: res.dsHookKind, locator: k.Locator})
			}
		}
		if !k.Introducing && k.FullyHidden() {
			purge = append(purge, k.Locator)
		}
	}

	for _, locator := range purge {
		if h, ferr := e.Keystore.FindByLocator(locator); ferr == nil {
			if err := e.Keystore.Remove(h); err != nil {
				log.Printf("enforcer: zone %q: keystore remove %s: %v", zoneName, locator, err)
			}
		}
		zone.Keys = removeKeyByLocator(zone.Keys, locator)
		if err := tx.DeleteKey(zoneName, locator); err != nil {
			return 0, err
		}
		changed = true
	}

	for _, k := range zone.Keys {
		krec, err := tx.GetKey(zoneName, k.Locator)
		if err != nil {
			return 0, err
		}
		krec.Entity = k
		if err := tx.UpdateKey(krec); err != nil {
			return 0, err
		}
	}

	if changed {
		zone.SignconfNeedsWriting = true
	}
	if err := tx.UpdateZone(zrec); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true

	for _, h := range hooks {
		e.runHook(zoneName, zone, h)
	}
	if changed && e.SignconfHook != nil {
		e.SignconfHook(zoneName)
	}

	return task.AtTime(e.nextWake(now, zone, policy)), nil
}

// applyPendingRollovers starts withdrawal of a role's active key(s) when
// the policy-key's lifetime has elapsed (and ManualRollover is false) or a
// roll_*_now flag forces it, spec.md §4.6 "Pending-rollover flags". It
// does not itself generate a successor; computeDeficit picks up the
// resulting gap on the same pass.
func (e *Enforcer) applyPendingRollovers(now int64, zone *keymodel.Zone, policy *keymodel.Policy) bool {
	changed := false
	for _, pk := range policy.Keys {
		forced := zone.PendingRoll(pk.Role)
		for _, k := range zone.KeysWithRole(pk.Role) {
			if !k.Introducing {
				continue
			}
			expired := pk.Lifetime > 0 && !pk.ManualRollover && now >= k.Inception+pk.Lifetime
			if expired || forced {
				k.Introducing = false
				changed = true
			}
		}
		if forced {
			zone.ClearPendingRoll(pk.Role)
		}
	}
	return changed
}

type hookJob struct {
	kind    dsHookKind
	locator string
}

func (e *Enforcer) runHook(zoneName string, zone *keymodel.Zone, h hookJob) {
	k := zone.KeyByLocator(h.locator)
	if k == nil {
		return
	}
	var cmd string
	switch h.kind {
	case dsHookSubmit:
		cmd = e.DSSubmitCmd
	case dsHookRetract:
		cmd = e.DSRetractCmd
	default:
		return
	}
	if cmd == "" {
		return
	}
	handle, err := e.Keystore.FindByLocator(k.Locator)
	if err != nil {
		log.Printf("enforcer: zone %q: ds hook for %s: resolving key: %v", zoneName, k.Locator, err)
		return
	}
	flags := uint16(256)
	if k.Role == keymodel.RoleKSK || k.Role == keymodel.RoleCSK {
		flags = 257
	}
	rr, err := keystore.BuildDNSKEY(zoneName, handle, k.Algorithm, flags, uint32(k.DNSKEY.TTL))
	if err != nil {
		log.Printf("enforcer: zone %q: ds hook for %s: building DNSKEY: %v", zoneName, k.Locator, err)
		return
	}
	dnskeyRR := []byte(rr.String() + "\n")
	if err := e.Hook.Run(cmd, zoneName, dnskeyRR); err != nil {
		log.Printf("enforcer: zone %q: ds hook for %s failed: %v", zoneName, k.Locator, err)
	}
}

func removeKeyByLocator(keys []*keymodel.Key, locator string) []*keymodel.Key {
	out := keys[:0]
	for _, k := range keys {
		if k.Locator != locator {
			out = append(out, k)
		}
	}
	return out
}

// nextWake implements spec.md §4.6 "Next-wake computation": the minimum
// over all keys of the earliest admissibility boundary, or the next
// policy-key lifetime boundary, plus a one-second grace.
func (e *Enforcer) nextWake(now int64, zone *keymodel.Zone, policy *keymodel.Policy) int64 {
	best := int64(-1)
	consider := func(t int64) {
		if best == -1 || t < best {
			best = t
		}
	}

	for _, k := range zone.Keys {
		for _, class := range k.AllClasses() {
			if b, ok := nextBoundary(zone, policy, k, class); ok {
				consider(b)
			}
		}
	}
	for _, pk := range policy.Keys {
		if pk.Lifetime <= 0 || pk.ManualRollover {
			continue
		}
		for _, k := range zone.KeysWithRole(pk.Role) {
			if k.Introducing {
				consider(k.Inception + pk.Lifetime)
			}
		}
	}

	if best == -1 {
		resign := policy.Signature.Resign
		if resign <= 0 {
			resign = task.MinBackoff
		}
		return now + resign
	}
	if best < now {
		best = now
	}
	return best + keymodel.NextWakeGrace
}

func computeDeficit(zone *keymodel.Zone, policy *keymodel.Policy) []keymodel.PolicyKey {
	var out []keymodel.PolicyKey
	for _, pk := range policy.Keys {
		target := 1 + pk.StandbyCount
		count := 0
		for _, k := range zone.Keys {
			if k.Role == pk.Role && k.Introducing {
				count++
			}
		}
		if count < target {
			out = append(out, pk)
		}
	}
	return out
}
