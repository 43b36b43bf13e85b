package snapstore

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/sysinfo"
)

func snapshot(seq uint64) *sysinfo.Snapshot {
	return &sysinfo.Snapshot{
		Seq:       seq,
		Timestamp: time.Now(),
		CPUs:      []sysinfo.CPUCore{{Name: "cpu0", Usage: float64(seq)}},
		Memory:    sysinfo.MemoryStats{Total: 1000, Used: seq * 10},
		Processes: []sysinfo.ProcessInfo{{PID: int32(seq), Name: "p"}},
	}
}

func seqs(snaps []*sysinfo.Snapshot) []uint64 {
	out := make([]uint64, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Seq)
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []uint64
}

func (n *recordingNotifier) Notify(s *sysinfo.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, s.Seq)
}

func TestStore_CurrentBeforePublish(t *testing.T) {
	s := New(3)
	assert.Nil(t, s.Current())
	assert.Empty(t, s.Snapshots())

	res := s.History(0)
	assert.False(t, res.Gap)
	assert.Empty(t, res.Snapshots)
}

func TestStore_CurrentReturnsLatestPublish(t *testing.T) {
	s := New(4)
	for i := uint64(1); i <= 10; i++ {
		snap := snapshot(i)
		require.NoError(t, s.Publish(snap))
		assert.Same(t, snap, s.Current())
	}
}

func TestStore_RejectsOutOfOrder(t *testing.T) {
	s := New(4)
	require.NoError(t, s.Publish(snapshot(2)))

	err := s.Publish(snapshot(2))
	assert.True(t, errors.Is(err, ErrOutOfOrder))
	err = s.Publish(snapshot(1))
	assert.True(t, errors.Is(err, ErrOutOfOrder))
	assert.Error(t, s.Publish(nil))

	assert.Equal(t, uint64(2), s.Current().Seq)
	assert.Equal(t, 1, s.Len())
}

func TestStore_EvictsOldest(t *testing.T) {
	s := New(3)
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, s.Publish(snapshot(i)))
	}

	assert.Equal(t, 3, s.Capacity())
	assert.Equal(t, []uint64{3, 4, 5}, seqs(s.Snapshots()))
}

func TestStore_HistoryGap(t *testing.T) {
	const capacity, extra = 4, 3
	recorder := events.NewRecorder(10)
	s := New(capacity, WithRecorder(recorder))
	for i := uint64(1); i <= capacity+extra; i++ {
		require.NoError(t, s.Publish(snapshot(i)))
	}

	tests := []struct {
		name     string
		since    uint64
		expected []uint64
		gap      bool
		missed   uint64
	}{
		{
			name:     "from the very beginning",
			since:    0,
			expected: []uint64{4, 5, 6, 7},
			gap:      true,
			missed:   extra,
		},
		{
			name:     "from the earliest published",
			since:    1,
			expected: []uint64{4, 5, 6, 7},
			gap:      true,
			missed:   extra - 1,
		},
		{
			name:     "right before the oldest retained",
			since:    3,
			expected: []uint64{4, 5, 6, 7},
		},
		{
			name:     "inside the buffer",
			since:    5,
			expected: []uint64{6, 7},
		},
		{
			name:     "up to date",
			since:    7,
			expected: []uint64{},
		},
		{
			name:     "cursor ahead of the store",
			since:    42,
			expected: []uint64{4, 5, 6, 7},
			gap:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.History(tt.since)
			assert.Equal(t, tt.expected, seqs(res.Snapshots))
			assert.Equal(t, tt.gap, res.Gap)
			assert.Equal(t, tt.missed, res.Missed)
		})
	}
	assert.Equal(t, uint64(3), recorder.Count(events.HistoryGap))
}

func TestStore_NotifiesAfterPublish(t *testing.T) {
	n := &recordingNotifier{}
	observed := &checkingNotifier{}
	s := New(2, WithNotifier(n), WithNotifier(observed))
	observed.store = s

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, s.Publish(snapshot(i)))
	}
	_ = s.Publish(snapshot(1))

	assert.Equal(t, []uint64{1, 2, 3}, n.seen)
	assert.False(t, observed.sawStale.Load())
}

// checkingNotifier asserts the snapshot is already current when notified.
type checkingNotifier struct {
	store    *Store
	sawStale atomic.Bool
}

func (c *checkingNotifier) Notify(s *sysinfo.Snapshot) {
	if c.store.Current() != s {
		c.sawStale.Store(true)
	}
}

func TestStore_ConcurrentReadersNeverSeeTornState(t *testing.T) {
	const (
		capacity = 16
		writes   = 2000
		readers  = 8
	)
	s := New(capacity)

	published := make(map[*sysinfo.Snapshot]struct{}, writes)
	var publishedMu sync.RWMutex

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var failures atomic.Int64

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				cur := s.Current()
				if cur == nil {
					continue
				}
				publishedMu.RLock()
				_, ok := published[cur]
				publishedMu.RUnlock()
				// The snapshot's own fields must agree with each other.
				if !ok || cur.Seq < last || cur.Processes[0].PID != int32(cur.Seq) || cur.Memory.Used != cur.Seq*10 {
					failures.Add(1)
				}
				last = cur.Seq

				hist := s.History(0).Snapshots
				if len(hist) > capacity {
					failures.Add(1)
				}
				for i := 1; i < len(hist); i++ {
					if hist[i].Seq != hist[i-1].Seq+1 {
						failures.Add(1)
					}
				}
			}
		}()
	}

	for i := uint64(1); i <= writes; i++ {
		snap := snapshot(i)
		publishedMu.Lock()
		published[snap] = struct{}{}
		publishedMu.Unlock()
		require.NoError(t, s.Publish(snap))
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, uint64(writes), s.Current().Seq)
}
