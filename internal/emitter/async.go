package emitter

import (
	"sync"
	"sync/atomic"
)

// AsyncSubscriber runs a handler on its own goroutine behind a bounded
// queue. Events arriving while the queue is full are dropped and counted.
type AsyncSubscriber struct {
	fn      Handler
	queue   chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
	failed  atomic.Int64
}

// Async starts a subscriber that delivers to fn with a queue of buffer
// events. Subscribe its Handle method and call Close when the run ends.
func Async(fn Handler, buffer int) *AsyncSubscriber {
	a := &AsyncSubscriber{
		fn:    fn,
		queue: make(chan Event, max(buffer, 1)),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncSubscriber) loop() {
	defer close(a.done)
	for ev := range a.queue {
		if err := deliver(a.fn, ev); err != nil {
			a.failed.Add(1)
		}
	}
}

// Handle enqueues ev without blocking.
func (a *AsyncSubscriber) Handle(ev Event) {
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Close stops accepting events and waits for the queue to drain. Handle
// must not be called after Close.
func (a *AsyncSubscriber) Close() {
	a.once.Do(func() { close(a.queue) })
	<-a.done
}

// Dropped counts events discarded because the queue was full.
func (a *AsyncSubscriber) Dropped() int64 { return a.dropped.Load() }

// Failed counts recovered handler panics.
func (a *AsyncSubscriber) Failed() int64 { return a.failed.Load() }
