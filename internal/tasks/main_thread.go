package tasks

import (
	"sync"

	"github.com/gammazero/deque"
)

// MainThreadProcessor holds tasks until the owner asks for them to be run on its
// own goroutine. Tasks at MaxPriority jump the queue.
type MainThreadProcessor struct {
	mu    sync.Mutex
	queue deque.Deque[Task]
}

func NewMainThreadProcessor() *MainThreadProcessor {
	return &MainThreadProcessor{}
}

func (p *MainThreadProcessor) AddTask(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.Priority() == MaxPriority {
		p.queue.PushFront(t)
		return
	}
	p.queue.PushBack(t)
}

func (p *MainThreadProcessor) HasTasks() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len() > 0
}

// ProcessOneTask runs the front task, if any.
func (p *MainThreadProcessor) ProcessOneTask() bool {
	p.mu.Lock()
	if p.queue.Len() == 0 {
		p.mu.Unlock()
		return false
	}
	t := p.queue.PopFront()
	p.mu.Unlock()
	t.Process()
	return true
}

func (p *MainThreadProcessor) ProcessAllTasks() int {
	n := 0
	for p.ProcessOneTask() {
		n++
	}
	return n
}
