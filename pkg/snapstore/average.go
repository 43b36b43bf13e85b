package snapstore

import (
	"time"

	"github.com/voluzi/procview/pkg/sysinfo"
)

// Within returns the retained snapshots taken during the last window.
func (s *Store) Within(window time.Duration) []*sysinfo.Snapshot {
	cutoff := time.Now().Add(-window)

	var result []*sysinfo.Snapshot
	for _, snap := range s.state.Load().history {
		if snap.Timestamp.After(cutoff) {
			result = append(result, snap)
		}
	}
	return result
}

// AverageCPUUsage returns the mean total CPU usage, in percent, over the window.
func (s *Store) AverageCPUUsage(window time.Duration) float64 {
	samples := s.Within(window)
	if len(samples) == 0 {
		return 0
	}

	var total float64
	for _, snap := range samples {
		total += snap.TotalCPUUsage()
	}
	return total / float64(len(samples))
}

// AverageMemoryUsage returns the mean used memory, in bytes, over the window.
func (s *Store) AverageMemoryUsage(window time.Duration) uint64 {
	samples := s.Within(window)
	if len(samples) == 0 {
		return 0
	}

	var totalMem uint64
	for _, snap := range samples {
		totalMem += snap.Memory.Used
	}

	return totalMem / uint64(len(samples))
}
