package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/fifoqueue"
	"github.com/opendnssec/opendnssec-sub014/internal/schedule"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
)

func TestPool_RunsDueTasks(t *testing.T) {
	sched := schedule.New()
	fifo := fifoqueue.New(10)
	pool := New(2, sched, fifo, nil)

	var ran int32
	tsk := task.New("zone.", "enforcer", "enforce", func(owner string, ud interface{}, ctx task.Context) task.Hint {
		atomic.AddInt32(&ran, 1)
		return task.SUCCESS
	}, nil, nil, clock.Immediately)
	require.NoError(t, sched.Push(tsk))

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ran) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPool_DrudgersProcessFifoWhileIdle(t *testing.T) {
	sched := schedule.New()
	fifo := fifoqueue.New(10)

	var processed int32
	pool := New(3, sched, fifo, func(item interface{}) bool {
		atomic.AddInt32(&processed, 1)
		return true
	})
	pool.Start()
	defer pool.Stop()

	var tries int
	for i := 0; i < 5; i++ {
		fifo.Push(i, "submitter", &tries)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processed) == 5
	}, time.Second, 5*time.Millisecond)
}

func TestPool_WorkerBlockedInWaitForDoesNotStarveOthers(t *testing.T) {
	sched := schedule.New()
	fifo := fifoqueue.New(10)

	var processed int32
	pool := New(2, sched, fifo, func(item interface{}) bool {
		atomic.AddInt32(&processed, 1)
		return true
	})
	pool.Start()
	defer pool.Stop()

	// Simulate a zone task that pushes subtasks then blocks in WaitFor,
	// occupying one worker loop's goroutine conceptually; the pool's
	// other worker goroutines must still drain the FIFO.
	go func() {
		var tries int
		for i := 0; i < 4; i++ {
			fifo.Push(i, "zoneA", &tries)
		}
		failed := fifo.WaitFor("zoneA", 4)
		assert.Equal(t, 0, failed)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processed) == 4
	}, time.Second, 5*time.Millisecond)
}
