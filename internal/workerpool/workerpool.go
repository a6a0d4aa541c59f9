// Package workerpool implements the N-thread worker pool of spec.md
// §2/§4.5: workers pop due tasks from the schedule and, as drudgers, also
// consume signing subtasks from the FIFO queue, so a worker blocked inside
// one zone's wait_for doesn't starve the other zones' signing work.
package workerpool

import (
	"log"
	"sync"
	"time"

	"github.com/opendnssec/opendnssec-sub014/internal/fifoqueue"
	"github.com/opendnssec/opendnssec-sub014/internal/schedule"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
)

// SubtaskHandler processes one FIFO item and reports whether it succeeded.
// The signer driver registers the handler that signs one RRset.
type SubtaskHandler func(item interface{}) bool

// pollInterval bounds how long a worker blocks in schedule.PopDue before
// checking the FIFO queue for drudger work; it is the only busy-loop knob
// in the pool and is kept short because PopDue itself blocks efficiently
// on the dispatch CV whenever the schedule is genuinely idle of due work.
const pollInterval = 200 * time.Millisecond

// Pool runs N worker goroutines over a Schedule and a fifoqueue.Queue.
type Pool struct {
	n        int
	schedule *schedule.Schedule
	fifo     *fifoqueue.Queue
	handler  SubtaskHandler

	wg      sync.WaitGroup
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// New builds a Pool of n workers. handler may be nil until the signer
// driver is wired in (tasks that never push to fifo work fine either way).
func New(n int, sched *schedule.Schedule, fifo *fifoqueue.Queue, handler SubtaskHandler) *Pool {
	if n <= 0 {
		n = 1
	}
	return &Pool{
		n:        n,
		schedule: sched,
		fifo:     fifo,
		handler:  handler,
		stopCh:   make(chan struct{}),
	}
}

// SetHandler installs (or replaces) the subtask handler; callers should do
// this before Start, but it's safe to swap afterwards too (workers read it
// each loop iteration under no lock — Pool only ever has one handler
// installed by the daemon's own init sequence, not a concurrent caller).
func (p *Pool) SetHandler(h SubtaskHandler) { p.handler = h }

// Start launches the pool's N worker goroutines.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
}

// Stop requests every worker to exit, releases the schedule and FIFO so no
// worker is left stranded in a wait, and blocks until all workers have
// returned (spec.md §4.5, §5).
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopCh)
	p.schedule.ReleaseAll()
	p.fifo.RequestExit()
	p.wg.Wait()
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		tsk, ok := p.schedule.PopDue(time.Now().Add(pollInterval))
		if ok {
			p.runTask(tsk)
			continue
		}

		select {
		case <-p.stopCh:
			return
		default:
		}

		if p.handler != nil {
			if item, ok := p.fifo.TryPop(); ok {
				success := p.runSubtask(item)
				p.fifo.Report(item.Submitter, success)
			}
		}
	}
}

func (p *Pool) runTask(tsk *task.Task) {
	now := time.Now().Unix()
	newDue, destroy := tsk.Perform(now)
	if destroy {
		tsk.Destroy()
		return
	}
	p.schedule.Reschedule(tsk, newDue)
}

func (p *Pool) runSubtask(item fifoqueue.Item) (success bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("workerpool: subtask handler for submitter %q panicked: %v", item.Submitter, r)
			success = false
		}
	}()
	return p.handler(item.Value)
}
