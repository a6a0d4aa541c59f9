// Package task implements the schedulable unit of work, spec.md §3.1/§4.2:
// an element of work uniquely identified by the triple (owner, class,
// type), with a due date, back-off, and a callback that returns a
// reschedule hint.
package task

import (
	"fmt"
	"log"
	"sync"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
)

// Triple is a task's identity: (owner, class, type). Two tasks with equal
// triples may never coexist in a Schedule (spec.md §3.1 invariant).
type Triple struct {
	Owner string
	Class string
	Type  string
}

func (t Triple) String() string {
	return fmt.Sprintf("%s/%s/%s", t.Owner, t.Class, t.Type)
}

// Less implements the comparison order of spec.md §4.2: time, then owner,
// then type, then class. Schedule uses this (with DueDate folded in) to
// keep its dispatch index ordered.
func (t Triple) Less(o Triple) bool {
	if t.Owner != o.Owner {
		return t.Owner < o.Owner
	}
	if t.Type != o.Type {
		return t.Type < o.Type
	}
	return t.Class < o.Class
}

// Whatever is the wildcard task type used in cancel/replace lookups
// (spec.md §4.2): it matches any type for a given (owner, class).
const Whatever = "WHATEVER"

// Hint is the reschedule hint a Callback returns, spec.md §3.1/§4.2.
type Hint int64

const (
	// SUCCESS destroys the task.
	SUCCESS Hint = -1
	// PROMPTLY reschedules at now (spec.md: "a second call this instant").
	PROMPTLY Hint = -2
	// IMMEDIATELY reschedules at epoch (0), so it sorts before any
	// other "due now" task.
	IMMEDIATELY Hint = -3
	// DEFER doubles backoff (clamped to [MinBackoff, MaxBackoff]) and
	// reschedules at now+backoff.
	DEFER Hint = -4
)

// AtTime wraps an absolute due_date (seconds since epoch) as a Hint. Any
// value t >= 0 reschedules at exactly t (spec.md §4.2: "any t ≥ 0").
func AtTime(t int64) Hint { return Hint(t) }

const (
	MinBackoff int64 = 60
	MaxBackoff int64 = 86400
)

// Context is passed to a Callback so it can see why it's running and
// report back without touching Schedule internals directly.
type Context struct {
	Now int64
}

// Callback is a task's unit of work. It must not block indefinitely and
// must never throw across the task boundary (spec.md §7): all failures are
// translated into a Hint (typically DEFER or PROMPTLY) by the caller.
type Callback func(owner string, userdata interface{}, ctx Context) Hint

// Deleter frees userdata when a task is destroyed or replaced.
type Deleter func(userdata interface{})

// Task is one schedulable unit of work.
type Task struct {
	Triple

	// DueDate is wall-clock seconds at which the task becomes runnable.
	// clock.Whenever means "do not wake me for this task"; clock.Immediately
	// runs it at now.
	DueDate int64

	// Backoff is the current back-off in seconds, doubled on DEFER and
	// clamped to [MinBackoff, MaxBackoff]; reset to 0 on SUCCESS.
	Backoff int64

	Callback Callback
	Userdata interface{}
	Freedata Deleter

	// Lock, if non-nil, is the shared mutex ensuring at most one
	// concurrent execution of all tasks tagged with the same key
	// (typically one lock per owner). Schedule supplies this via its
	// lock table; Task itself never creates one.
	Lock *sync.Mutex
}

// New constructs a Task. owner is retained by the task (and released via
// freedata when the task is destroyed), mirroring the ownership contract
// of spec.md §4.2.
func New(owner, class, typ string, cb Callback, userdata interface{}, freedata Deleter, dueDate int64) *Task {
	return &Task{
		Triple:   Triple{Owner: owner, Class: class, Type: typ},
		DueDate:  dueDate,
		Callback: cb,
		Userdata: userdata,
		Freedata: freedata,
	}
}

// Destroy releases userdata via Freedata, if set.
func (t *Task) Destroy() {
	if t.Freedata != nil && t.Userdata != nil {
		t.Freedata(t.Userdata)
		t.Userdata = nil
	}
}

// enforcerWorkLock is the process-wide lock spec.md §4.2 and §5 describe
// as a database-serialization workaround: every task whose class is
// "enforcer" additionally acquires this lock for the duration of its
// callback. spec.md §9 flags this as global mutable state to be replaced
// by per-transaction snapshot + optimistic retry; we keep it as an
// explicit fallback capability, gated by a package variable so a store
// backend that doesn't need it can disable it.
var enforcerWorkLock sync.Mutex

// EnforcerSerializationEnabled controls whether the process-wide enforcer
// lock is held. Defaults to true, matching the teacher's behavior; a
// caller with a fully transactional store (internal/storage.Store with
// real optimistic concurrency) may set this false.
var EnforcerSerializationEnabled = true

const EnforcerClass = "enforcer"

// Perform runs t.Callback under t's per-triple lock (if any) and, for
// class=="enforcer" tasks, under the process-wide enforcer lock too
// (spec.md §4.2). It interprets the returned Hint and returns the new
// DueDate the task should be rescheduled to, along with a "destroy" flag
// for SUCCESS.
//
// Rescheduling failures are the caller's concern (Schedule.Reschedule logs
// and drops a reschedule that would duplicate a live triple); Perform
// itself never fails.
func (t *Task) Perform(now int64) (newDue int64, destroy bool) {
	if t.Lock != nil {
		t.Lock.Lock()
		defer t.Lock.Unlock()
	}
	if t.Class == EnforcerClass && EnforcerSerializationEnabled {
		enforcerWorkLock.Lock()
		defer enforcerWorkLock.Unlock()
	}

	hint := t.Callback(t.Owner, t.Userdata, Context{Now: now})

	switch hint {
	case SUCCESS:
		t.Backoff = 0
		return 0, true
	case PROMPTLY:
		return now, false
	case IMMEDIATELY:
		return clock.Immediately, false
	case DEFER:
		if t.Backoff == 0 {
			t.Backoff = MinBackoff
		} else {
			t.Backoff *= 2
		}
		if t.Backoff < MinBackoff {
			t.Backoff = MinBackoff
		}
		if t.Backoff > MaxBackoff {
			t.Backoff = MaxBackoff
		}
		return now + t.Backoff, false
	default:
		if int64(hint) < 0 {
			log.Printf("task.Perform: %s: callback returned unknown negative hint %d, treating as DEFER", t.Triple, hint)
			return t.deferFrom(now)
		}
		t.Backoff = 0
		return int64(hint), false
	}
}

func (t *Task) deferFrom(now int64) (int64, bool) {
	if t.Backoff == 0 {
		t.Backoff = MinBackoff
	} else {
		t.Backoff *= 2
	}
	if t.Backoff > MaxBackoff {
		t.Backoff = MaxBackoff
	}
	return now + t.Backoff, false
}
