package publisher

import (
	"sync"
	"sync/atomic"

	"github.com/voluzi/procview/pkg/sysinfo"
)

// State of a subscriber. The only transitions are Active -> Lagging,
// Active -> Closed and Lagging -> Closed.
type State int32

const (
	Active State = iota
	Lagging
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Lagging:
		return "lagging"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Subscriber is one streaming client's view of the publisher. Snapshots are
// delivered on a bounded queue; when it is full the oldest queued snapshot is
// discarded in favour of the new one.
type Subscriber struct {
	id        uint64
	publisher *Publisher
	queue     chan *sysinfo.Snapshot
	done      chan struct{}

	// mu serialises delivery against close so the queue is never sent on
	// after it was closed.
	mu      sync.Mutex
	state   atomic.Int32
	stalled int

	dropped      atomic.Uint64
	totalDropped atomic.Uint64
}

func newSubscriber(id uint64, p *Publisher, size int) *Subscriber {
	return &Subscriber{
		id:        id,
		publisher: p,
		queue:     make(chan *sysinfo.Snapshot, size),
		done:      make(chan struct{}),
	}
}

func (s *Subscriber) ID() uint64 {
	return s.id
}

// C returns the queue. It is closed once the subscriber is closed, after any
// snapshots still queued have been received.
func (s *Subscriber) C() <-chan *sysinfo.Snapshot {
	return s.queue
}

// Done is closed when the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// TakeDropped returns how many snapshots were discarded since the previous call.
func (s *Subscriber) TakeDropped() uint64 {
	return s.dropped.Swap(0)
}

// Dropped returns how many snapshots were discarded over the subscriber's lifetime.
func (s *Subscriber) Dropped() uint64 {
	return s.totalDropped.Load()
}

// Close unsubscribes. It is idempotent and safe to call concurrently with Notify.
func (s *Subscriber) Close() {
	s.publisher.Unsubscribe(s)
}

// deliver enqueues snapshot and reports how many queued snapshots had to be
// discarded to make room, plus whether the subscriber has been overflowing
// for more than maxStalled consecutive deliveries.
func (s *Subscriber) deliver(snapshot *sysinfo.Snapshot, maxStalled int) (discarded int, stalled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Closed {
		return 0, false
	}

	for {
		select {
		case s.queue <- snapshot:
			if discarded == 0 {
				s.stalled = 0
			} else {
				s.stalled++
			}
			return discarded, maxStalled > 0 && s.stalled > maxStalled
		default:
		}

		// Full: drop the oldest. The consumer may have drained it in the
		// meantime, in which case the next send succeeds.
		select {
		case <-s.queue:
			discarded++
			s.dropped.Add(1)
			s.totalDropped.Add(1)
			s.state.CompareAndSwap(int32(Active), int32(Lagging))
		default:
		}
	}
}

// close marks the subscriber closed and closes its channels. It reports
// whether this call did the closing.
func (s *Subscriber) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Swap(int32(Closed))) == Closed {
		return false
	}
	close(s.done)
	close(s.queue)
	return true
}
