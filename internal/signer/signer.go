// Package signer implements the signer driver of spec.md §4.7: per zone,
// four state-driven tasks chain — signconf, read, sign, write — turning
// enforcer decisions (the zone's current key set) into signed zone output.
// Signing one RRset is pushed onto the shared fifoqueue as a subtask and
// consumed by the same worker pool that runs these tasks, spec.md §2/§4.5.
package signer

import (
	"context"
	"sync"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/errs"
	"github.com/opendnssec/opendnssec-sub014/internal/fifoqueue"
	"github.com/opendnssec/opendnssec-sub014/internal/keystore"
	"github.com/opendnssec/opendnssec-sub014/internal/schedule"
	"github.com/opendnssec/opendnssec-sub014/internal/storage"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
	"github.com/opendnssec/opendnssec-sub014/internal/zonefile"
)

// SignerClass and the four chained task types, spec.md §4.7.
const (
	SignerClass   = "signer"
	TaskSignconf  = "signconf"
	TaskRead      = "read"
	TaskSign      = "sign"
	TaskWrite     = "write"
)

// Driver wires the read -> sign -> write pipeline to its collaborators:
// persistence, the keystore, the schedule it runs its tasks on, and the
// fifoqueue its sign task pushes RRset subtasks onto.
type Driver struct {
	Store    storage.Store
	Keystore keystore.Keystore
	Schedule *schedule.Schedule
	Fifo     *fifoqueue.Queue
	Clock    clock.Clock

	mu    sync.Mutex
	views map[string]*zonefile.Zone // per-zone in-memory view, read -> sign -> write
}

// New builds a Driver.
func New(store storage.Store, ks keystore.Keystore, sched *schedule.Schedule, fifo *fifoqueue.Queue, c clock.Clock) *Driver {
	if c == nil {
		c = clock.Default
	}
	return &Driver{
		Store:    store,
		Keystore: ks,
		Schedule: sched,
		Fifo:     fifo,
		Clock:    c,
		views:    make(map[string]*zonefile.Zone),
	}
}

// RegisterZone starts zone's signing pipeline at the next scheduler tick
// (spec.md §4.7 step 1 "signconf").
func (d *Driver) RegisterZone(zoneName string) error {
	return d.pushSignconf(zoneName, clock.Immediately)
}

// TriggerResign forces an out-of-cycle signconf/read/sign/write pass, used
// by the enforcer's SignconfHook when a pass flags
// signconf_needs_writing (spec.md §4.6 "Side effects").
func (d *Driver) TriggerResign(zoneName string) {
	d.Schedule.Cancel(task.Triple{Owner: zoneName, Class: SignerClass, Type: TaskSignconf})
	d.Schedule.Cancel(task.Triple{Owner: zoneName, Class: SignerClass, Type: TaskRead})
	if err := d.pushSignconf(zoneName, clock.Immediately); err != nil && err != schedule.ErrDuplicate {
		return
	}
}

func (d *Driver) pushSignconf(zoneName string, due int64) error {
	t := task.New(zoneName, SignerClass, TaskSignconf, d.signconfCallback, nil, nil, due)
	if err := d.Schedule.Push(t); err != nil && err != schedule.ErrDuplicate {
		return err
	}
	return nil
}

func (d *Driver) pushNext(zoneName, typ string, due int64) {
	t := task.New(zoneName, SignerClass, typ, d.callbackFor(typ), nil, nil, due)
	if err := d.Schedule.Push(t); err != nil && err != schedule.ErrDuplicate {
		// Duplicate means the next stage is already scheduled (e.g. a
		// concurrent TriggerResign); not an error for the pipeline.
		_ = err
	}
}

func (d *Driver) callbackFor(typ string) task.Callback {
	switch typ {
	case TaskRead:
		return d.readCallback
	case TaskSign:
		return d.signCallback
	case TaskWrite:
		return d.writeCallback
	default:
		return d.signconfCallback
	}
}

func beginTx(store storage.Store) (context.Context, storage.Tx, error) {
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	return ctx, tx, err
}

func translateHint(err error) task.Hint {
	switch errs.KindOf(err) {
	case errs.CONFLICT:
		return task.PROMPTLY
	case errs.NOT_FOUND:
		return task.SUCCESS
	case errs.CONFIG:
		return task.SUCCESS
	default:
		return task.DEFER
	}
}

func (d *Driver) setView(zoneName string, z *zonefile.Zone) {
	d.mu.Lock()
	d.views[zoneName] = z
	d.mu.Unlock()
}

func (d *Driver) getView(zoneName string) (*zonefile.Zone, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	z, ok := d.views[zoneName]
	return z, ok
}
