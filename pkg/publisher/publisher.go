package publisher

import (
	"sync"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/sysinfo"
)

const (
	DefaultQueueSize  = 8
	DefaultMaxStalled = 60

	// ErrClosed is returned by Subscribe after the publisher was closed.
	ErrClosed = errors.Sentinel("publisher is closed")
)

// Publisher fans snapshots out to subscribers without ever waiting on them.
type Publisher struct {
	queueSize  int
	maxStalled int
	recorder   *events.Recorder

	mu          sync.RWMutex
	nextID      uint64
	subscribers map[uint64]*Subscriber
	closed      bool
}

type Option func(*Publisher)

// WithQueueSize sets how many snapshots each subscriber can hold.
func WithQueueSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithMaxStalled closes subscribers that overflow on more than n consecutive
// notifications. Zero keeps them forever.
func WithMaxStalled(n int) Option {
	return func(p *Publisher) {
		p.maxStalled = n
	}
}

func WithRecorder(r *events.Recorder) Option {
	return func(p *Publisher) {
		p.recorder = r
	}
}

func New(opts ...Option) *Publisher {
	p := &Publisher{
		queueSize:   DefaultQueueSize,
		maxStalled:  DefaultMaxStalled,
		subscribers: make(map[uint64]*Subscriber),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers a new subscriber. Only snapshots notified after this
// call are delivered to it.
func (p *Publisher) Subscribe() (*Subscriber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	p.nextID++
	sub := newSubscriber(p.nextID, p, p.queueSize)
	p.subscribers[sub.id] = sub

	log.WithFields(log.Fields{
		"subscriber":  sub.id,
		"subscribers": len(p.subscribers),
	}).Debug("subscriber added")
	return sub, nil
}

// Unsubscribe removes sub and closes it. Calling it more than once is harmless.
func (p *Publisher) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	p.mu.Lock()
	delete(p.subscribers, sub.id)
	remaining := len(p.subscribers)
	p.mu.Unlock()

	if sub.close() {
		log.WithFields(log.Fields{
			"subscriber":  sub.id,
			"subscribers": remaining,
			"dropped":     sub.Dropped(),
		}).Debug("subscriber removed")
	}
}

// Notify hands snapshot to every subscriber and returns without waiting for
// any of them to consume it.
func (p *Publisher) Notify(snapshot *sysinfo.Snapshot) {
	p.mu.RLock()
	subs := make([]*Subscriber, 0, len(p.subscribers))
	for _, sub := range p.subscribers {
		subs = append(subs, sub)
	}
	p.mu.RUnlock()

	for _, sub := range subs {
		discarded, stalled := sub.deliver(snapshot, p.maxStalled)
		if discarded > 0 {
			p.recorder.Record(events.SubscriberLagging,
				log.Fields{"subscriber": sub.id, "seq": snapshot.Seq},
				"subscriber %d queue full, discarded %d queued snapshot(s)", sub.id, discarded)
		}
		if stalled {
			p.recorder.Record(events.SubscriberDropped,
				log.Fields{"subscriber": sub.id, "dropped": sub.Dropped()},
				"subscriber %d stopped consuming, closing it", sub.id)
			p.Unsubscribe(sub)
		}
	}
}

// Len returns the number of registered subscribers.
func (p *Publisher) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

// Close closes every subscriber and rejects new ones.
func (p *Publisher) Close() {
	p.mu.Lock()
	p.closed = true
	subs := p.subscribers
	p.subscribers = make(map[uint64]*Subscriber)
	p.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	log.WithField("subscribers", len(subs)).Debug("publisher closed")
}
