// Package emitter delivers run lifecycle notifications to subscribers.
//
// An Emitter belongs to one run. Delivery is synchronous and in
// subscription order; a panicking subscriber is recovered, counted and
// logged, and never affects the run or the other subscribers. Slow
// consumers wrap their handler with Async.
package emitter

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Topic names a notification type.
type Topic string

const (
	TopicTickStart    Topic = "tick-start"
	TopicTickComplete Topic = "tick-complete"
	TopicViolation    Topic = "violation"
	TopicRunComplete  Topic = "run-complete"
)

// Topics lists every topic in lifecycle order.
var Topics = []Topic{TopicTickStart, TopicTickComplete, TopicViolation, TopicRunComplete}

// Event is one notification. Payload depends on the topic.
type Event struct {
	Topic   Topic
	RunID   string
	Tick    int64
	Payload any
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id    int64
	topic Topic // empty for all topics
	fn    Handler
}

// Emitter is a synchronous publish/subscribe hub.
type Emitter struct {
	mu       sync.Mutex
	subs     []*subscription
	nextID   int64
	failures int
	logger   *slog.Logger
}

// New creates an emitter. A nil logger discards.
func New(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Emitter{logger: logger}
}

// Subscribe registers fn for topic and returns a function that removes it.
func (e *Emitter) Subscribe(topic Topic, fn Handler) (unsubscribe func()) {
	return e.add(topic, fn)
}

// SubscribeAll registers fn for every topic.
func (e *Emitter) SubscribeAll(fn Handler) (unsubscribe func()) {
	return e.add("", fn)
}

func (e *Emitter) add(topic Topic, fn Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, &subscription{id: id, topic: topic, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.subs = slices.DeleteFunc(e.subs, func(s *subscription) bool { return s.id == id })
	}
}

// Publish delivers ev to every matching subscriber before returning.
// Subscribers added or removed during delivery take effect on the next
// Publish.
func (e *Emitter) Publish(ev Event) {
	e.mu.Lock()
	subs := slices.Clone(e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		if s.topic != "" && s.topic != ev.Topic {
			continue
		}
		if err := deliver(s.fn, ev); err != nil {
			e.mu.Lock()
			e.failures++
			e.mu.Unlock()
			e.logger.Warn("subscriber failed", "topic", ev.Topic, "tick", ev.Tick, "error", err)
		}
	}
}

// Failures counts recovered subscriber panics.
func (e *Emitter) Failures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures
}

// Len returns the number of subscriptions.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

func deliver(fn Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn(ev)
	return nil
}
