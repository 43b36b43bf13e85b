package snapstore

import (
	"sync"
	"sync/atomic"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/sysinfo"
)

const (
	DefaultCapacity = 720

	// ErrOutOfOrder is returned when a published snapshot is not newer than the current one.
	ErrOutOfOrder = errors.Sentinel("snapshot sequence is not increasing")
)

// Notifier is told about every snapshot right after it becomes visible.
// Notify must not block.
type Notifier interface {
	Notify(snapshot *sysinfo.Snapshot)
}

// state is never modified after it is stored.
type state struct {
	history []*sysinfo.Snapshot
}

func (s *state) current() *sysinfo.Snapshot {
	if len(s.history) == 0 {
		return nil
	}
	return s.history[len(s.history)-1]
}

// Store holds the latest snapshot and a bounded, ordered history.
//
// Publish is serialised; readers only ever load an immutable state through an
// atomic pointer, so they never wait on a writer nor see a partial update.
type Store struct {
	capacity  int
	state     atomic.Pointer[state]
	writeLock sync.Mutex
	notifiers []Notifier
	recorder  *events.Recorder
}

type Option func(*Store)

// WithNotifier registers n to be called after every successful publish.
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		s.notifiers = append(s.notifiers, n)
	}
}

func WithRecorder(r *events.Recorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

// New creates a store retaining at most capacity snapshots.
func New(capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{capacity: capacity}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(&state{})
	return s
}

func (s *Store) Capacity() int {
	return s.capacity
}

// Publish makes snapshot the current one, appends it to the history evicting
// the oldest entry when full, then notifies.
func (s *Store) Publish(snapshot *sysinfo.Snapshot) error {
	if snapshot == nil {
		return errors.New("nil snapshot")
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	old := s.state.Load()
	if cur := old.current(); cur != nil && snapshot.Seq <= cur.Seq {
		return errors.WithDetails(ErrOutOfOrder, "current", cur.Seq, "published", snapshot.Seq)
	}

	start := 0
	if len(old.history)+1 > s.capacity {
		start = len(old.history) + 1 - s.capacity
	}
	history := make([]*sysinfo.Snapshot, 0, len(old.history)-start+1)
	history = append(history, old.history[start:]...)
	history = append(history, snapshot)
	s.state.Store(&state{history: history})

	log.WithFields(log.Fields{
		"seq":       snapshot.Seq,
		"processes": len(snapshot.Processes),
		"retained":  len(history),
	}).Trace("published snapshot")

	for _, n := range s.notifiers {
		n.Notify(snapshot)
	}
	return nil
}

// Current returns the latest snapshot or nil before the first publish.
func (s *Store) Current() *sysinfo.Snapshot {
	return s.state.Load().current()
}

// Snapshots returns the whole retained history, oldest first.
func (s *Store) Snapshots() []*sysinfo.Snapshot {
	return append([]*sysinfo.Snapshot(nil), s.state.Load().history...)
}

// Len returns how many snapshots are retained.
func (s *Store) Len() int {
	return len(s.state.Load().history)
}
