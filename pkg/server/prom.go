package server

import (
	"net/http"
	"strconv"

	prom "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/ptr"

	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/sysinfo"
)

const metricsNamespace = "procview_"

func gauge(name, help string, metrics ...*prom.Metric) *prom.MetricFamily {
	return &prom.MetricFamily{
		Name:   ptr.To(metricsNamespace + name),
		Help:   ptr.To(help),
		Type:   prom.MetricType_GAUGE.Enum(),
		Metric: metrics,
	}
}

func gaugeValue(v float64, labels ...string) *prom.Metric {
	return &prom.Metric{
		Label: labelPairs(labels...),
		Gauge: &prom.Gauge{Value: ptr.To(v)},
	}
}

func counterValue(v float64, labels ...string) *prom.Metric {
	return &prom.Metric{
		Label:   labelPairs(labels...),
		Counter: &prom.Counter{Value: ptr.To(v)},
	}
}

// labelPairs turns name, value, name, value... into label pairs.
func labelPairs(kv ...string) []*prom.LabelPair {
	var pairs []*prom.LabelPair
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, &prom.LabelPair{Name: ptr.To(kv[i]), Value: ptr.To(kv[i+1])})
	}
	return pairs
}

// metricFamilies describes the pipeline and, when there is one, the current snapshot.
func (s *Server) metricFamilies() []*prom.MetricFamily {
	families := []*prom.MetricFamily{
		gauge("history_snapshots", "Number of snapshots retained in history.",
			gaugeValue(float64(s.store.Len()))),
		gauge("subscribers", "Number of connected stream subscribers.",
			gaugeValue(float64(s.publisher.Len()))),
		gauge("sampler_idle", "Whether sampling is suspended for lack of clients.",
			gaugeValue(boolToFloat(s.sampler.Idle()))),
	}

	eventCounts := &prom.MetricFamily{
		Name: ptr.To(metricsNamespace + "events_total"),
		Help: ptr.To("Pipeline events by kind."),
		Type: prom.MetricType_COUNTER.Enum(),
	}
	counts := s.recorder.Counts()
	for _, kind := range events.Kinds {
		eventCounts.Metric = append(eventCounts.Metric, counterValue(float64(counts[kind]), "kind", string(kind)))
	}
	families = append(families, eventCounts)

	if snap := s.store.Current(); snap != nil {
		families = append(families, snapshotFamilies(snap)...)
	}
	return families
}

func snapshotFamilies(snap *sysinfo.Snapshot) []*prom.MetricFamily {
	cores := make([]*prom.Metric, 0, len(snap.CPUs))
	for i, c := range snap.CPUs {
		cores = append(cores, gaugeValue(c.Usage, "core", strconv.Itoa(i)))
	}

	families := []*prom.MetricFamily{
		gauge("snapshot_sequence", "Sequence number of the latest snapshot.",
			gaugeValue(float64(snap.Seq))),
		gauge("snapshot_timestamp_seconds", "Capture time of the latest snapshot.",
			gaugeValue(float64(snap.Timestamp.UnixNano())/1e9)),
		gauge("cpu_usage_percent", "Mean CPU usage over all cores.",
			gaugeValue(snap.TotalCPUUsage())),
		gauge("cpu_core_usage_percent", "CPU usage per core.", cores...),
		gauge("memory_bytes", "Memory usage.",
			gaugeValue(float64(snap.Memory.Total), "kind", "total"),
			gaugeValue(float64(snap.Memory.Used), "kind", "used"),
			gaugeValue(float64(snap.Memory.Available), "kind", "available"),
			gaugeValue(float64(snap.Memory.SwapTotal), "kind", "swap_total"),
			gaugeValue(float64(snap.Memory.SwapUsed), "kind", "swap_used"),
		),
		gauge("network_bytes_per_second", "Network throughput over all interfaces.",
			gaugeValue(snap.Network.RecvPerSecond, "direction", "recv"),
			gaugeValue(snap.Network.SentPerSecond, "direction", "sent"),
		),
		gauge("processes", "Number of processes in the latest snapshot.",
			gaugeValue(float64(len(snap.Processes)))),
	}

	if snap.Load != nil {
		families = append(families, gauge("load_average", "System load average.",
			gaugeValue(snap.Load.Load1, "period", "1m"),
			gaugeValue(snap.Load.Load5, "period", "5m"),
			gaugeValue(snap.Load.Load15, "period", "15m"),
		))
	}

	if len(snap.Disks) > 0 {
		disks := make([]*prom.Metric, 0, 2*len(snap.Disks))
		seen := make(map[string]bool, len(snap.Disks))
		for _, d := range snap.Disks {
			// Stacked mounts report the same usage for a mount point.
			if seen[d.MountPoint] {
				continue
			}
			seen[d.MountPoint] = true
			disks = append(disks,
				gaugeValue(float64(d.Total), "mount_point", d.MountPoint, "kind", "total"),
				gaugeValue(float64(d.Free), "mount_point", d.MountPoint, "kind", "available"),
			)
		}
		families = append(families, gauge("disk_bytes", "Disk space per mount point.", disks...))
	}

	if len(snap.Components) > 0 {
		temps := make([]*prom.Metric, 0, len(snap.Components))
		// Sensor keys repeat across identical devices, the index tells them apart.
		index := make(map[string]int, len(snap.Components))
		for _, c := range snap.Components {
			temps = append(temps, gaugeValue(c.Temperature, "sensor", c.Label, "index", strconv.Itoa(index[c.Label])))
			index[c.Label]++
		}
		families = append(families, gauge("temperature_celsius", "Sensor temperatures.", temps...))
	}
	return families
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	w.WriteHeader(http.StatusOK)

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range s.metricFamilies() {
		if err := enc.Encode(mf); err != nil {
			log.Errorf("error encoding metric family %s: %v", mf.GetName(), err)
			return
		}
	}
}
