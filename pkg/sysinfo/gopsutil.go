package sysinfo

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/jellydator/ttlcache/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

// DefaultProcessTTL is how long a process handle is kept after it was last seen.
const DefaultProcessTTL = 2 * time.Minute

type processHandle struct {
	proc       *process.Process
	createTime int64
}

// GopsutilProvider reads metrics from the local OS through gopsutil.
type GopsutilProvider struct {
	// handles keeps gopsutil processes between samples so that CPU usage
	// is computed as a delta against the previous sample.
	handles *ttlcache.Cache[int32, *processHandle]

	mu          sync.Mutex
	lastNet     *net.IOCountersStat
	lastNetTime time.Time
}

var _ Provider = (*GopsutilProvider)(nil)

func NewGopsutilProvider(processTTL time.Duration) *GopsutilProvider {
	if processTTL <= 0 {
		processTTL = DefaultProcessTTL
	}
	return &GopsutilProvider{
		handles: ttlcache.New(
			ttlcache.WithTTL[int32, *processHandle](processTTL),
		),
	}
}

func (g *GopsutilProvider) SampleSystem(ctx context.Context) (*SystemStats, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, errors.Wrap(ErrProviderUnavailable, fmt.Sprintf("reading cpu usage: %v", err))
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrProviderUnavailable, fmt.Sprintf("reading memory: %v", err))
	}

	stats := &SystemStats{
		CPUs: make([]CPUCore, len(percents)),
		Memory: MemoryStats{
			Total:     vm.Total,
			Used:      vm.Used,
			Free:      vm.Free,
			Available: vm.Available,
		},
	}
	for i, p := range percents {
		stats.CPUs[i] = CPUCore{Name: fmt.Sprintf("cpu%d", i), Usage: p}
	}

	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		stats.Memory.SwapTotal = swap.Total
		stats.Memory.SwapUsed = swap.Used
		stats.Memory.SwapFree = swap.Free
	} else {
		log.WithError(err).Debug("failed to read swap")
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		stats.Host = HostInfo{
			Hostname: info.Hostname,
			Uptime:   info.Uptime,
			BootTime: info.BootTime,
			OS:       info.OS,
			Platform: info.Platform,
			Kernel:   info.KernelVersion,
		}
	} else {
		log.WithError(err).Debug("failed to read host info")
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		stats.Load = &LoadAverage{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	} else {
		log.WithError(err).Debug("failed to read load average")
	}

	stats.Disks = g.sampleDisks(ctx)
	stats.Network = g.sampleNetwork(ctx)
	stats.Components = g.sampleComponents(ctx)
	return stats, nil
}

func (g *GopsutilProvider) sampleDisks(ctx context.Context) []DiskInfo {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		log.WithError(err).Debug("failed to list partitions")
		return nil
	}
	disks := make([]DiskInfo, 0, len(partitions))
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			log.WithError(err).WithField("mount", p.Mountpoint).Debug("failed to read disk usage")
			continue
		}
		disks = append(disks, DiskInfo{
			Device:     p.Device,
			MountPoint: p.Mountpoint,
			FileSystem: p.Fstype,
			Total:      usage.Total,
			Free:       usage.Free,
		})
	}
	return disks
}

func (g *GopsutilProvider) sampleNetwork(ctx context.Context) NetworkStats {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil || len(counters) == 0 {
		log.WithError(err).Debug("failed to read network counters")
		return NetworkStats{}
	}
	now := time.Now()
	current := counters[0]

	g.mu.Lock()
	defer g.mu.Unlock()

	stats := NetworkStats{BytesRecv: current.BytesRecv, BytesSent: current.BytesSent}
	if g.lastNet != nil {
		elapsed := now.Sub(g.lastNetTime).Seconds()
		if elapsed > 0 && current.BytesRecv >= g.lastNet.BytesRecv && current.BytesSent >= g.lastNet.BytesSent {
			stats.RecvPerSecond = float64(current.BytesRecv-g.lastNet.BytesRecv) / elapsed
			stats.SentPerSecond = float64(current.BytesSent-g.lastNet.BytesSent) / elapsed
		}
	}
	g.lastNet = &current
	g.lastNetTime = now
	return stats
}

func (g *GopsutilProvider) sampleComponents(ctx context.Context) []Component {
	// Sensors are often partially readable; keep whatever came back.
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil {
		log.WithError(err).Debug("failed to read some temperature sensors")
	}
	components := make([]Component, 0, len(temps))
	for _, t := range temps {
		components = append(components, Component{
			Label:       t.SensorKey,
			Temperature: t.Temperature,
			High:        t.High,
			Critical:    t.Critical,
		})
	}
	return components
}

func (g *GopsutilProvider) SampleProcesses(ctx context.Context) ([]ProcessInfo, error) {
	g.handles.DeleteExpired()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.WrapIf(err, "listing processes")
	}

	rows := make([]ProcessInfo, 0, len(procs))
	var errs []error
	for _, p := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		info, err := g.readProcess(ctx, p)
		if err != nil {
			errs = append(errs, &ProcessReadError{PID: p.Pid, Err: err})
			continue
		}
		rows = append(rows, info)
	}

	slices.SortFunc(rows, func(a, b ProcessInfo) int {
		return cmp.Compare(a.PID, b.PID)
	})
	return rows, errors.Combine(errs...)
}

// handle returns the cached gopsutil process for p, replacing it when the pid
// now belongs to a different process.
func (g *GopsutilProvider) handle(ctx context.Context, p *process.Process) (*processHandle, error) {
	createTime, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return nil, err
	}
	if item := g.handles.Get(p.Pid); item != nil && item.Value().createTime == createTime {
		return item.Value(), nil
	}
	h := &processHandle{proc: p, createTime: createTime}
	g.handles.Set(p.Pid, h, ttlcache.DefaultTTL)
	return h, nil
}

func (g *GopsutilProvider) readProcess(ctx context.Context, p *process.Process) (ProcessInfo, error) {
	h, err := g.handle(ctx, p)
	if err != nil {
		return ProcessInfo{}, err
	}
	proc := h.proc

	name, err := proc.NameWithContext(ctx)
	if err != nil {
		return ProcessInfo{}, err
	}
	mi, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessInfo{}, err
	}
	cpuPercent, err := proc.PercentWithContext(ctx, 0)
	if err != nil {
		return ProcessInfo{}, err
	}

	info := ProcessInfo{
		PID:        proc.Pid,
		Name:       name,
		CPUPercent: cpuPercent,
		RSS:        mi.RSS,
		StartTime:  h.createTime,
	}
	// Parent, command line and status are not always readable for other
	// users' processes; the row is still useful without them.
	if ppid, err := proc.PpidWithContext(ctx); err == nil {
		info.PPID = ppid
	}
	if cmdline, err := proc.CmdlineWithContext(ctx); err == nil {
		info.Cmdline = cmdline
	}
	if status, err := proc.StatusWithContext(ctx); err == nil {
		info.Status = strings.Join(status, ",")
	}
	return info, nil
}
