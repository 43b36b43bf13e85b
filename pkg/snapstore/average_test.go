package snapstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voluzi/procview/pkg/sysinfo"
)

func TestStore_AverageUsage(t *testing.T) {
	s := New(10)
	now := time.Now()

	samples := []struct {
		age time.Duration
		cpu []float64
		mem uint64
	}{
		{age: 2 * time.Minute, cpu: []float64{100, 100}, mem: 9999},
		{age: 2 * time.Second, cpu: []float64{10, 30}, mem: 1000},
		{age: 1 * time.Second, cpu: []float64{40, 40}, mem: 1500},
	}
	for i, sample := range samples {
		snap := &sysinfo.Snapshot{
			Seq:       uint64(i + 1),
			Timestamp: now.Add(-sample.age),
			Memory:    sysinfo.MemoryStats{Used: sample.mem},
		}
		for _, c := range sample.cpu {
			snap.CPUs = append(snap.CPUs, sysinfo.CPUCore{Usage: c})
		}
		require.NoError(t, s.Publish(snap))
	}

	assert.Len(t, s.Within(time.Minute), 2)
	assert.Equal(t, float64(30), s.AverageCPUUsage(time.Minute))
	assert.Equal(t, uint64(1250), s.AverageMemoryUsage(time.Minute))

	assert.Equal(t, float64(0), New(1).AverageCPUUsage(time.Minute))
	assert.Equal(t, uint64(0), New(1).AverageMemoryUsage(time.Minute))
}
