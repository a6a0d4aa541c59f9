package fifoqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// property 3 (spec.md §8): push n, pop n, count==0, set of popped == set of pushed.
func TestPushPop_Exhaustive(t *testing.T) {
	q := New(100)
	var tries int
	want := map[int]bool{}
	for i := 0; i < 50; i++ {
		res := q.Push(i, "submitter", &tries)
		require.Equal(t, Pushed, res)
		want[i] = true
	}
	assert.Equal(t, 50, q.Len())

	got := map[int]bool{}
	for i := 0; i < 50; i++ {
		item, ok := q.Pop()
		require.True(t, ok)
		got[item.Value.(int)] = true
	}
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, want, got)
}

// property 4 (spec.md §8): WaitFor(n) returns only after exactly n Report calls.
func TestWaitFor_ExactlyNReports(t *testing.T) {
	q := New(100)
	var tries int
	const n = 20
	for i := 0; i < n; i++ {
		q.Push(i, "zoneA", &tries)
	}

	var reported int32
	var mu sync.Mutex
	done := make(chan struct{})

	go func() {
		failed := q.WaitFor("zoneA", n)
		assert.Equal(t, 0, failed)
		close(done)
	}()

	for i := 0; i < n; i++ {
		item, ok := q.Pop()
		require.True(t, ok)
		_ = item
		mu.Lock()
		reported++
		r := reported
		mu.Unlock()
		q.Report("zoneA", true)
		if r < n {
			select {
			case <-done:
				t.Fatalf("WaitFor returned early after %d reports", r)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("WaitFor did not return after n reports")
	}
}

// Scenario C (spec.md §8): queue full at capacity 1000; the (capacity+1)th
// push returns Unchanged once tries is exhausted; popping down to the 10%
// threshold (100 items left) frees room, so pushes succeed again.
func TestQueueFull_UnchangedThenRecovers(t *testing.T) {
	q := New(1000)
	var tries int
	for i := 0; i < 1000; i++ {
		res := q.Push(i, "s", &tries)
		require.Equal(t, Pushed, res)
	}

	// Queue is full: simulate a producer that doesn't want to block
	// forever by pre-setting tries past the threshold.
	tries = triesCount + 1
	res := q.Push(1000, "s", &tries)
	assert.Equal(t, Unchanged, res)
	assert.Equal(t, 0, tries, "tries resets after Unchanged")
	assert.Equal(t, 1000, q.Len())

	for i := 0; i < 900; i++ {
		_, ok := q.Pop()
		require.True(t, ok)
	}
	assert.Equal(t, 100, q.Len())

	tries = 0
	res = q.Push(2000, "s", &tries)
	assert.Equal(t, Pushed, res)
}

// Scenario F (spec.md §8): a waiter in WaitFor must return promptly when
// RequestExit is called, with failed == outstanding.
func TestRequestExit_UnblocksWaitFor(t *testing.T) {
	q := New(10)
	var tries int
	q.Push(1, "z", &tries)
	q.Push(2, "z", &tries)

	done := make(chan int)
	go func() {
		failed := q.WaitFor("z", 2)
		done <- failed
	}()

	time.Sleep(10 * time.Millisecond)
	q.RequestExit()

	select {
	case failed := <-done:
		assert.Equal(t, 2, failed)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("WaitFor did not return within bound after RequestExit")
	}
}

func TestPop_UnblocksOnRequestExitWhenEmpty(t *testing.T) {
	q := New(10)
	done := make(chan bool)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.RequestExit()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Pop did not unblock")
	}
}
