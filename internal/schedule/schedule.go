// Package schedule implements the ordered task container of spec.md §3.2
// and §4.3: time-ordered dispatch, per-triple uniqueness, a lock table
// keyed by owner so same-owner tasks serialize, and condition-variable
// based wait/wake for workers.
package schedule

import (
	"container/heap"
	"fmt"
	"log"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
)

// ErrDuplicate is returned by Push when a task with the same triple
// already exists in the schedule (spec.md §3.1 invariant).
var ErrDuplicate = fmt.Errorf("schedule: duplicate triple")

// Schedule holds three indexes over tasks: a due-time heap (dispatch
// order), a by-triple map (uniqueness + lookup), and a lock table mapping
// owner to a shared mutex so same-owner tasks serialize regardless of
// class/type (spec.md §3.2, §4.3).
type Schedule struct {
	mu       sync.Mutex
	cond     *sync.Cond
	byTriple map[task.Triple]*task.Task
	heap     taskHeap

	locks cmap.ConcurrentMap[string, *sync.Mutex]

	// numWaiting is incremented around the dispatch-CV wait and used by
	// tests (and operators) to detect quiescence, spec.md §3.2.
	numWaiting int

	released bool

	clock clock.Clock
}

// New builds an empty Schedule using the real wall clock.
func New() *Schedule {
	return NewWithClock(clock.Default)
}

// NewWithClock builds an empty Schedule backed by c, so tests can drive it
// with a clock.FakeClock instead of real time.
func NewWithClock(c clock.Clock) *Schedule {
	s := &Schedule{
		byTriple: make(map[task.Triple]*task.Task),
		locks:    cmap.New[*sync.Mutex](),
		clock:    c,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// lockFor returns (creating if necessary) the shared mutex for owner.
func (s *Schedule) lockFor(owner string) *sync.Mutex {
	m, _ := s.locks.Get(owner)
	if m != nil {
		return m
	}
	newMu := &sync.Mutex{}
	s.locks.SetIfAbsent(owner, newMu)
	m, _ = s.locks.Get(owner)
	return m
}

// Push inserts t into the schedule, assigning it the owner's shared
// triple-lock. Returns ErrDuplicate (schedule unchanged) if t's triple is
// already present. On success, if t is now the soonest-due task, the
// dispatch condition variable is broadcast.
func (s *Schedule) Push(t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTriple[t.Triple]; exists {
		return ErrDuplicate
	}

	t.Lock = s.lockFor(t.Owner)
	s.byTriple[t.Triple] = t
	heap.Push(&s.heap, t)

	if s.heap.Len() > 0 && s.heap[0] == t {
		s.cond.Broadcast()
	}
	return nil
}

// Lookup returns the task with the given triple, if present.
func (s *Schedule) Lookup(tr task.Triple) (*task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byTriple[tr]
	return t, ok
}

// Len returns the number of tasks currently scheduled.
func (s *Schedule) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byTriple)
}

// PopDue returns the earliest task with due <= s.clock.NowSeconds(). If
// none is due, it waits on the dispatch condition variable up to the
// earlier of the soonest future due time and deadline. Returns (nil,
// false) on timeout or on ReleaseAll.
func (s *Schedule) PopDue(deadline time.Time) (*task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.released {
			return nil, false
		}
		now := s.clock.NowSeconds()
		if s.heap.Len() > 0 && s.heap[0].DueDate <= now {
			t := heap.Pop(&s.heap).(*task.Task)
			delete(s.byTriple, t.Triple)
			return t, true
		}

		wait := deadline
		if s.heap.Len() > 0 {
			soonest := time.Unix(s.heap[0].DueDate, 0)
			if soonest.Before(wait) {
				wait = soonest
			}
		}

		now2 := time.Now()
		if !wait.After(now2) {
			return nil, false
		}

		timer := time.AfterFunc(wait.Sub(now2), func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})

		s.numWaiting++
		s.cond.Wait()
		s.numWaiting--
		timer.Stop()

		if !deadline.After(time.Now()) {
			return nil, false
		}
	}
}

// NumWaiting reports how many goroutines are currently parked in PopDue's
// condition-variable wait; tests use it to detect idle workers.
func (s *Schedule) NumWaiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numWaiting
}

// Cancel removes the task matching tr. tr.Type may be task.Whatever, in
// which case any type matching (Owner, Class) is removed (spec.md §4.2
// wildcard semantics, used for cancel/replace).
func (s *Schedule) Cancel(tr task.Triple) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(tr)
}

func (s *Schedule) cancelLocked(tr task.Triple) bool {
	removed := false
	if tr.Type != task.Whatever {
		if t, ok := s.byTriple[tr]; ok {
			s.removeFromHeapLocked(t)
			delete(s.byTriple, tr)
			removed = true
		}
		return removed
	}
	for k, t := range s.byTriple {
		if k.Owner == tr.Owner && k.Class == tr.Class {
			s.removeFromHeapLocked(t)
			delete(s.byTriple, k)
			removed = true
		}
	}
	return removed
}

// CancelAll removes every task owned by owner.
func (s *Schedule) CancelAll(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, t := range s.byTriple {
		if k.Owner == owner {
			s.removeFromHeapLocked(t)
			delete(s.byTriple, k)
			n++
		}
	}
	return n
}

// Flush sets the due time of every task matching typ (or every task, if
// typ is "") to 0 and wakes dispatch, spec.md §4.3/§6.3.
func (s *Schedule) Flush(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.byTriple {
		if typ == "" || t.Type == typ {
			t.DueDate = clock.Immediately
			n++
		}
	}
	if n > 0 {
		heap.Init(&s.heap)
		s.cond.Broadcast()
	}
	return n
}

// Reschedule reinserts t at newDue (used by the worker pool after a task's
// callback returns a reschedule hint other than SUCCESS). If t's triple
// collides with a task already pushed in the interim (shouldn't normally
// happen, since t was popped before running), the reschedule is logged and
// dropped rather than silently overwriting the newer task.
func (s *Schedule) Reschedule(t *task.Task, newDue int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byTriple[t.Triple]; exists {
		log.Printf("schedule.Reschedule: %s: triple reappeared while task was running, dropping stale reschedule", t.Triple)
		return
	}
	t.DueDate = newDue
	s.byTriple[t.Triple] = t
	heap.Push(&s.heap, t)
	if s.heap.Len() > 0 && s.heap[0] == t {
		s.cond.Broadcast()
	}
}

// ReleaseAll wakes every waiter and marks the schedule released; used on
// shutdown so no worker is left stranded in PopDue (spec.md §4.3, §5).
func (s *Schedule) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.cond.Broadcast()
}

// Reopen clears the released flag, allowing the schedule to be reused
// (mainly a test convenience).
func (s *Schedule) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = false
}

func (s *Schedule) removeFromHeapLocked(t *task.Task) {
	for i, h := range s.heap {
		if h == t {
			heap.Remove(&s.heap, i)
			return
		}
	}
}

// Snapshot returns a copy of all scheduled tasks' triples and due dates,
// for the read-only "queue" operator command (spec.md §6.3).
type Entry struct {
	Triple  task.Triple
	DueDate int64
	Backoff int64
}

func (s *Schedule) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.byTriple))
	for _, t := range s.byTriple {
		out = append(out, Entry{Triple: t.Triple, DueDate: t.DueDate, Backoff: t.Backoff})
	}
	return out
}
