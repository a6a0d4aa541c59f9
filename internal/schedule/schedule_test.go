package schedule

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
)

func noop(owner string, ud interface{}, ctx task.Context) task.Hint { return task.SUCCESS }

func TestPush_DuplicateRejected(t *testing.T) {
	s := New()
	tr := task.Triple{Owner: "a.", Class: "enforcer", Type: "enforce"}
	t1 := task.New(tr.Owner, tr.Class, tr.Type, noop, nil, nil, 10)
	require.NoError(t, s.Push(t1))

	got, ok := s.Lookup(tr)
	require.True(t, ok)
	assert.Equal(t, t1, got)

	t2 := task.New(tr.Owner, tr.Class, tr.Type, noop, nil, nil, 20)
	err := s.Push(t2)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, s.Len())
}

// property 2 (spec.md §8): pops come out in non-decreasing due-date order
// and every pushed task appears exactly once.
func TestPopDue_OrderedAndExhaustive(t *testing.T) {
	fc := clock.NewFakeClock(time.Unix(1_000_000, 0))
	s := NewWithClock(fc)

	dues := []int64{1_000_050, 1_000_010, 1_000_030, 1_000_010, 1_000_090}
	for i, due := range dues {
		tr := task.Triple{Owner: "zone", Class: "c", Type: time.Duration(i).String()}
		require.NoError(t, s.Push(task.New(tr.Owner, tr.Class, tr.Type, noop, nil, nil, due)))
	}

	fc.Set(time.Unix(1_000_100, 0))

	var last int64
	seen := 0
	for {
		tsk, ok := s.PopDue(time.Now())
		if !ok {
			break
		}
		assert.GreaterOrEqual(t, tsk.DueDate, last)
		last = tsk.DueDate
		seen++
	}
	assert.Equal(t, len(dues), seen)
}

func TestFlush_SetsAllDueToZero(t *testing.T) {
	fc := clock.NewFakeClock(time.Unix(0, 0))
	s := NewWithClock(fc)
	for i := 0; i < 5; i++ {
		tr := task.Triple{Owner: "z", Class: "c", Type: string(rune('a' + i))}
		require.NoError(t, s.Push(task.New(tr.Owner, tr.Class, tr.Type, noop, nil, nil, 1<<40)))
	}

	n := s.Flush("")
	assert.Equal(t, 5, n)

	count := 0
	for {
		tsk, ok := s.PopDue(time.Now())
		if !ok {
			break
		}
		assert.Equal(t, int64(0), tsk.DueDate)
		count++
	}
	assert.Equal(t, 5, count)
}

// Scenario E (spec.md §8): two tasks, same owner+class, distinct types,
// same due time, must never execute concurrently.
func TestSameOwnerSerialization(t *testing.T) {
	s := New()
	var tracer int32
	var wg sync.WaitGroup
	var mu sync.Mutex
	violations := 0

	cb := func(owner string, ud interface{}, ctx task.Context) task.Hint {
		mu.Lock()
		tracer++
		cur := tracer
		mu.Unlock()
		if cur > 1 {
			violations++
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		tracer--
		mu.Unlock()
		return task.SUCCESS
	}

	t1 := task.New("zone.", "enforcer", "enforce", cb, nil, nil, clock.Immediately)
	t2 := task.New("zone.", "signer", "sign", cb, nil, nil, clock.Immediately)
	require.NoError(t, s.Push(t1))
	require.NoError(t, s.Push(t2))

	run := func(tt *task.Task) {
		defer wg.Done()
		tt.Perform(0)
	}
	wg.Add(2)
	go run(t1)
	go run(t2)
	wg.Wait()

	assert.Equal(t, 0, violations)
}

func TestCancelAndCancelAll(t *testing.T) {
	s := New()
	tr1 := task.Triple{Owner: "z.", Class: "enforcer", Type: "enforce"}
	tr2 := task.Triple{Owner: "z.", Class: "signer", Type: "sign"}
	require.NoError(t, s.Push(task.New(tr1.Owner, tr1.Class, tr1.Type, noop, nil, nil, 100)))
	require.NoError(t, s.Push(task.New(tr2.Owner, tr2.Class, tr2.Type, noop, nil, nil, 200)))

	assert.True(t, s.Cancel(tr1))
	assert.Equal(t, 1, s.Len())

	n := s.CancelAll("z.")
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, s.Len())
}

func TestReleaseAllWakesWaiters(t *testing.T) {
	s := New()
	done := make(chan struct{})
	go func() {
		s.PopDue(time.Now().Add(time.Hour))
		close(done)
	}()

	// give the goroutine a moment to start waiting.
	time.Sleep(10 * time.Millisecond)
	s.ReleaseAll()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("PopDue did not return after ReleaseAll")
	}
}
