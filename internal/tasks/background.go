package tasks

import (
	"container/heap"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
)

// BackgroundProcessor runs tasks highest-priority-first. With zero workers it
// behaves synchronously: tasks wait until ProcessAllTasks is called. Otherwise a
// pond worker pool drains the queue; each submission pops whatever task has the
// highest priority at the moment a worker picks it up.
type BackgroundProcessor struct {
	workers int
	pool    pond.Pool

	mu      sync.Mutex
	pending taskHeap
	seq     uint64

	inFlight atomic.Int64
	closed   atomic.Bool
}

func NewBackgroundProcessor(workers int) *BackgroundProcessor {
	if workers < 0 {
		workers = 0
	}
	p := &BackgroundProcessor{workers: workers}
	if workers > 0 {
		p.pool = pond.NewPool(workers)
	}
	return p
}

// Workers is the pool size; zero means synchronous.
func (p *BackgroundProcessor) Workers() int { return p.workers }

// AddTask queues t. Tasks added after Close are dropped.
func (p *BackgroundProcessor) AddTask(t Task) {
	if p.closed.Load() {
		return
	}
	p.inFlight.Add(1)
	p.mu.Lock()
	p.seq++
	heap.Push(&p.pending, queuedTask{task: t, seq: p.seq})
	p.mu.Unlock()

	if p.pool == nil {
		return
	}
	p.pool.Submit(p.runNext)
}

func (p *BackgroundProcessor) pop() Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending.Len() == 0 {
		return nil
	}
	return heap.Pop(&p.pending).(queuedTask).task
}

func (p *BackgroundProcessor) runNext() {
	t := p.pop()
	if t == nil {
		return
	}
	defer p.inFlight.Add(-1)
	t.Process()
}

// HasTasks reports queued or running tasks.
func (p *BackgroundProcessor) HasTasks() bool { return p.inFlight.Load() > 0 }

// ProcessAllTasks runs queued tasks on the caller when the processor is synchronous.
func (p *BackgroundProcessor) ProcessAllTasks() int {
	if p.pool != nil {
		return 0
	}
	n := 0
	for {
		t := p.pop()
		if t == nil {
			return n
		}
		t.Process()
		p.inFlight.Add(-1)
		n++
	}
}

// Close waits for running tasks and drops anything still queued.
func (p *BackgroundProcessor) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	if p.pool != nil {
		p.pool.StopAndWait()
	}
	p.mu.Lock()
	dropped := p.pending.Len()
	p.pending = nil
	p.mu.Unlock()
	p.inFlight.Add(-int64(dropped))
}

type queuedTask struct {
	task Task
	seq  uint64
}

type taskHeap []queuedTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	pi, pj := h[i].task.Priority(), h[j].task.Priority()
	if pi != pj {
		return pi > pj
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(queuedTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
