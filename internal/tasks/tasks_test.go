package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordTask struct {
	id       int
	priority uint32
	out      *[]int
	mu       *sync.Mutex
}

func (t *recordTask) Priority() uint32 { return t.priority }
func (t *recordTask) Process() {
	t.mu.Lock()
	*t.out = append(*t.out, t.id)
	t.mu.Unlock()
}

func TestClockIsStrictlyIncreasing(t *testing.T) {
	var c Clock
	a := c.Next()
	b := c.Next()
	if !(b > a) || c.Now() != b {
		t.Fatalf("clock: a=%d b=%d now=%d", a, b, c.Now())
	}
}

func TestQueueFIFOAndAbort(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)
	ctx := context.Background()
	if v, err := q.WaitAndPop(ctx); err != nil || v != 1 {
		t.Fatalf("first pop: v=%d err=%v", v, err)
	}
	if v, ok := q.TryPop(); !ok || v != 2 {
		t.Fatalf("second pop: v=%d ok=%v", v, ok)
	}
	if _, ok := q.TryPop(); ok {
		t.Fatalf("queue should be empty")
	}

	errc := make(chan error, 1)
	go func() {
		_, err := q.WaitAndPop(ctx)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Abort()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrQueueAborted) {
			t.Fatalf("want ErrQueueAborted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("abort did not wake the consumer")
	}
}

func TestQueueContextCancel(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.WaitAndPop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestQueueMultipleConsumersSeeEveryItem(t *testing.T) {
	q := NewQueue[int]()
	const n = 200
	var got atomic.Int64
	var wg sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, err := q.WaitAndPop(ctx); err != nil {
					return
				}
				if got.Add(1) == n {
					q.Abort()
				}
			}
		}()
	}
	for i := 0; i < n; i++ {
		q.Push(i)
	}
	wg.Wait()
	if got.Load() != n {
		t.Fatalf("consumed %d want %d", got.Load(), n)
	}
}

func TestMainThreadProcessorRunsMaxPriorityFirst(t *testing.T) {
	var mu sync.Mutex
	var out []int
	p := NewMainThreadProcessor()
	p.AddTask(&recordTask{id: 1, priority: 5, out: &out, mu: &mu})
	p.AddTask(&recordTask{id: 2, priority: MaxPriority, out: &out, mu: &mu})
	p.AddTask(&recordTask{id: 3, priority: 1, out: &out, mu: &mu})
	if !p.HasTasks() {
		t.Fatalf("expected queued tasks")
	}
	if n := p.ProcessAllTasks(); n != 3 {
		t.Fatalf("processed %d want 3", n)
	}
	want := []int{2, 1, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("order: got %v want %v", out, want)
		}
	}
}

func TestBackgroundProcessorSynchronousPriorityOrder(t *testing.T) {
	var mu sync.Mutex
	var out []int
	p := NewBackgroundProcessor(0)
	defer p.Close()
	p.AddTask(&recordTask{id: 1, priority: 10, out: &out, mu: &mu})
	p.AddTask(&recordTask{id: 2, priority: 30, out: &out, mu: &mu})
	p.AddTask(&recordTask{id: 3, priority: 10, out: &out, mu: &mu})
	if len(out) != 0 {
		t.Fatalf("synchronous processor must not run tasks on AddTask")
	}
	if n := p.ProcessAllTasks(); n != 3 {
		t.Fatalf("processed %d want 3", n)
	}
	want := []int{2, 1, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("order: got %v want %v", out, want)
		}
	}
	if p.HasTasks() {
		t.Fatalf("no tasks should remain")
	}
}

func TestBackgroundProcessorPool(t *testing.T) {
	var mu sync.Mutex
	var out []int
	p := NewBackgroundProcessor(4)
	for i := 0; i < 50; i++ {
		p.AddTask(&recordTask{id: i, priority: uint32(i), out: &out, mu: &mu})
	}
	if n := p.ProcessAllTasks(); n != 0 {
		t.Fatalf("pooled processor should not run tasks on the caller, ran %d", n)
	}
	p.Close()
	if len(out) != 50 {
		t.Fatalf("ran %d tasks want 50", len(out))
	}
	if p.HasTasks() {
		t.Fatalf("no tasks should remain after Close")
	}
	p.AddTask(&recordTask{id: 99, out: &out, mu: &mu})
	if p.HasTasks() {
		t.Fatalf("tasks added after Close should be dropped")
	}
}
