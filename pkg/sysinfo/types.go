package sysinfo

import "time"

// Snapshot is a point-in-time capture of system and process metrics.
// It must not be modified once published.
type Snapshot struct {
	Seq        uint64        `json:"seq"`
	Timestamp  time.Time     `json:"timestamp"`
	Host       HostInfo      `json:"host"`
	CPUs       []CPUCore     `json:"cpus"`
	Load       *LoadAverage  `json:"load,omitempty"`
	Memory     MemoryStats   `json:"memory"`
	Disks      []DiskInfo    `json:"disks,omitempty"`
	Network    NetworkStats  `json:"network"`
	Components []Component   `json:"components,omitempty"`
	Processes  []ProcessInfo `json:"processes"`
}

// SystemStats holds the system-wide part of a snapshot as returned by a Provider.
type SystemStats struct {
	Host       HostInfo
	CPUs       []CPUCore
	Load       *LoadAverage
	Memory     MemoryStats
	Disks      []DiskInfo
	Network    NetworkStats
	Components []Component
}

type HostInfo struct {
	Hostname string `json:"hostname"`
	Uptime   uint64 `json:"uptime_sec"`
	BootTime uint64 `json:"boot_time"`
	OS       string `json:"os"`
	Platform string `json:"platform"`
	Kernel   string `json:"kernel"`
}

type CPUCore struct {
	Name  string  `json:"name"`
	Usage float64 `json:"usage_percent"`
}

type LoadAverage struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

type MemoryStats struct {
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Free      uint64 `json:"free"`
	Available uint64 `json:"available"`
	SwapTotal uint64 `json:"swap_total"`
	SwapUsed  uint64 `json:"swap_used"`
	SwapFree  uint64 `json:"swap_free"`
}

type DiskInfo struct {
	Device     string `json:"device"`
	MountPoint string `json:"mount_point"`
	FileSystem string `json:"file_system"`
	Total      uint64 `json:"total_space"`
	Free       uint64 `json:"available_space"`
}

// NetworkStats aggregates all interfaces. Rates are bytes per second since the
// previous sample and are zero on the first one.
type NetworkStats struct {
	BytesRecv     uint64  `json:"bytes_recv"`
	BytesSent     uint64  `json:"bytes_sent"`
	RecvPerSecond float64 `json:"recv_per_sec"`
	SentPerSecond float64 `json:"sent_per_sec"`
}

// Component is a hardware temperature sensor.
type Component struct {
	Label       string  `json:"label"`
	Temperature float64 `json:"temperature"`
	High        float64 `json:"max"`
	Critical    float64 `json:"critical"`
}

// ProcessInfo describes one process at the time of a snapshot.
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	PPID       int32   `json:"parent"`
	Name       string  `json:"name"`
	Cmdline    string  `json:"cmd"`
	CPUPercent float64 `json:"cpu_usage"`
	RSS        uint64  `json:"memory"`
	Status     string  `json:"status"`
	StartTime  int64   `json:"start_time"`
}

// TotalCPUUsage returns the mean usage over all cores.
func (s *Snapshot) TotalCPUUsage() float64 {
	if len(s.CPUs) == 0 {
		return 0
	}
	var total float64
	for _, c := range s.CPUs {
		total += c.Usage
	}
	return total / float64(len(s.CPUs))
}

// Process returns the row for pid, if present.
func (s *Snapshot) Process(pid int32) (ProcessInfo, bool) {
	for _, p := range s.Processes {
		if p.PID == pid {
			return p, true
		}
	}
	return ProcessInfo{}, false
}
