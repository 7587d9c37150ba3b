// Package events fans job events out to in-process subscribers and,
// optionally, to an AMQP exchange.
package events

import (
	"sync"

	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// AllJobs subscribes to every job.
const AllJobs = ""

// recentLimit bounds how many finished jobs keep their terminal event
// for late subscribers.
const recentLimit = 64

// Subscription receives events in publish order on C. A subscription
// bound to one job is closed after that job's terminal event.
type Subscription struct {
	C <-chan models.JobEvent

	jobID  string
	out    chan models.JobEvent
	broker *Broker

	mu       sync.Mutex
	queue    []models.JobEvent
	finished bool
	notify   chan struct{}
	cancel   chan struct{}
	once     sync.Once
}

// Close detaches the subscription. Pending events are discarded.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.cancel)
		s.broker.remove(s)
	})
}

func (s *Subscription) push(evt models.JobEvent) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	s.wake()
}

// finish lets the pump drain what is queued and then close C.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump moves queued events to the subscriber so a slow reader never
// blocks the publisher.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.finished
			s.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-s.notify:
				continue
			case <-s.cancel:
				return
			}
		}
		evt := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- evt:
		case <-s.cancel:
			return
		}
	}
}

// Broker is an in-process pub/sub hub keyed by job ID.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool

	// terminal events of recently finished jobs, oldest first
	recent      map[string]models.JobEvent
	recentOrder []string
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		recent: make(map[string]models.JobEvent),
	}
}

// Subscribe attaches to events of jobID, or of every job with AllJobs.
// Subscribing to a job that already finished delivers its terminal event
// and closes. Subscribing after Close returns an already closed
// subscription.
func (b *Broker) Subscribe(jobID string) *Subscription {
	out := make(chan models.JobEvent)
	s := &Subscription{
		C:      out,
		jobID:  jobID,
		out:    out,
		broker: b,
		notify: make(chan struct{}, 1),
		cancel: make(chan struct{}),
	}

	b.mu.Lock()
	if evt, ok := b.recent[jobID]; ok && jobID != AllJobs {
		s.queue = append(s.queue, evt)
		s.finished = true
	} else if b.closed {
		s.finished = true
	} else {
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Publish delivers evt to every matching subscriber. Terminal events
// close the subscriptions bound to that job.
func (b *Broker) Publish(evt models.JobEvent) {
	terminal := IsTerminal(evt)

	b.mu.Lock()
	if terminal {
		b.remember(evt)
	}
	var targets []*Subscription
	for s := range b.subs {
		if s.jobID != AllJobs && s.jobID != evt.JobID {
			continue
		}
		targets = append(targets, s)
		if terminal && s.jobID != AllJobs {
			delete(b.subs, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.push(evt)
		if terminal && s.jobID != AllJobs {
			s.finish()
		}
	}
}

// Subscribers returns the number of attached subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close finishes every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for s := range subs {
		s.finish()
	}
}

// remember must be called with mu held.
func (b *Broker) remember(evt models.JobEvent) {
	if _, ok := b.recent[evt.JobID]; !ok {
		b.recentOrder = append(b.recentOrder, evt.JobID)
	}
	b.recent[evt.JobID] = evt
	for len(b.recentOrder) > recentLimit {
		delete(b.recent, b.recentOrder[0])
		b.recentOrder = b.recentOrder[1:]
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// IsTerminal reports whether evt ends its job.
func IsTerminal(evt models.JobEvent) bool {
	return evt.Type == models.JobEventCompleted || evt.Type == models.JobEventFailed
}
