// Package task hands out task slots to competing workers.
package task

import (
	"sync/atomic"
)

// Kind is what a claimed slot asks the worker to do.
type Kind int

const (
	Stop Kind = iota
	Subscription
	Publication
)

func (k Kind) String() string {
	switch k {
	case Subscription:
		return "subscription"
	case Publication:
		return "publication"
	default:
		return "stop"
	}
}

// Counter is the single shared counter over the task space [0, publications+subscriptions).
// Slots [0, subscriptions) are subscriptions, the rest are publications.
type Counter struct {
	remaining     atomic.Int64
	subscriptions int64
	total         int64
}

// NewCounter returns a Counter over publications+subscriptions slots.
func NewCounter(publications, subscriptions uint64) *Counter {
	c := &Counter{
		subscriptions: int64(subscriptions),
		total:         int64(publications + subscriptions),
	}
	c.remaining.Store(c.total)
	return c
}

// Claim takes one slot and returns its index. No two calls return the same
// non-negative index. A negative index means the task space is exhausted.
func (c *Counter) Claim() int64 {
	return c.remaining.Add(-1)
}

// KindOf maps a claimed index to its task kind.
func (c *Counter) KindOf(index int64) Kind {
	switch {
	case index < 0:
		return Stop
	case index < c.subscriptions:
		return Subscription
	default:
		return Publication
	}
}

// Next claims a slot and returns it with its kind.
func (c *Counter) Next() (int64, Kind) {
	index := c.Claim()
	return index, c.KindOf(index)
}

// Total is the size of the task space.
func (c *Counter) Total() int64 {
	return c.total
}
