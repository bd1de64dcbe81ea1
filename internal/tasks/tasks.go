// Package tasks dispatches units of work either on the caller's goroutine or on a
// background worker pool, and carries the logical clock both sides stamp with.
package tasks

import (
	"math"
	"sync/atomic"
)

// MaxPriority marks work that must be done before anything else.
const MaxPriority = math.MaxUint32

// Task is one unit of work. Process may run on any goroutine.
type Task interface {
	Process()
	Priority() uint32
}

// Processor accepts tasks and runs them according to its policy.
type Processor interface {
	AddTask(t Task)
	HasTasks() bool
	// ProcessAllTasks runs every queued task on the calling goroutine and returns
	// how many ran. Pooled processors run tasks elsewhere and return 0.
	ProcessAllTasks() int
}

// Timestamp is a logical time; larger is later.
type Timestamp uint64

// Clock hands out strictly increasing timestamps. Safe for concurrent use.
type Clock struct {
	now atomic.Uint64
}

// Next advances the clock and returns the new time.
func (c *Clock) Next() Timestamp { return Timestamp(c.now.Add(1)) }

// Now is the most recently issued timestamp.
func (c *Clock) Now() Timestamp { return Timestamp(c.now.Load()) }
