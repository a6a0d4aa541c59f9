package schedule

import "github.com/opendnssec/opendnssec-sub014/internal/task"

// taskHeap is a container/heap.Interface ordering tasks by due date, then
// by the Triple.Less tie-break (spec.md §4.2 comparison order).
type taskHeap []*task.Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].DueDate != h[j].DueDate {
		return h[i].DueDate < h[j].DueDate
	}
	return h[i].Triple.Less(h[j].Triple)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(*task.Task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
