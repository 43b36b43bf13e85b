package integration

import (
	"context"
	"time"

	"emperror.dev/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/voluzi/procview/pkg/api"
	"github.com/voluzi/procview/pkg/client"
	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/sysinfo"
	"github.com/voluzi/procview/test/framework"
)

func testProcesses() []sysinfo.ProcessInfo {
	return []sysinfo.ProcessInfo{
		{PID: 1, Name: "init", RSS: 4 << 20},
		{PID: 417, PPID: 1, Name: "flaky", CPUPercent: 3, RSS: 16 << 20},
		{PID: 900, PPID: 1, Name: "worker", CPUPercent: 40, RSS: 256 << 20},
	}
}

func pidsOf(snap *sysinfo.Snapshot) []int32 {
	out := make([]int32, 0, len(snap.Processes))
	for _, p := range snap.Processes {
		out = append(out, p.PID)
	}
	return out
}

// nextSnapshot reads stream messages until a snapshot arrives.
func nextSnapshot(stream *client.Stream) *sysinfo.Snapshot {
	GinkgoHelper()
	for {
		msg, err := stream.Next()
		Expect(err).NotTo(HaveOccurred())
		if msg.Type == api.MessageSnapshot {
			return msg.Snapshot
		}
	}
}

var _ = Describe("Snapshot pipeline", func() {
	var (
		tf  *framework.Framework
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		tf = StartFramework(framework.WithProcesses(testProcesses()...))
	})

	It("serves increasing snapshots", func() {
		first, err := tf.Client().Current(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).NotTo(BeNil())
		Expect(pidsOf(first)).To(Equal([]int32{1, 417, 900}))

		Eventually(func() (uint64, error) {
			snap, err := tf.Client().Current(ctx)
			if err != nil || snap == nil {
				return 0, err
			}
			return snap.Seq, nil
		}).Should(BeNumerically(">", first.Seq))
	})

	It("drops only the process that could not be read", func() {
		tf.Provider().FailProcess(417, errors.New("process exited"))

		Eventually(func() ([]int32, error) {
			snap, err := tf.Client().Current(ctx)
			if err != nil || snap == nil {
				return nil, err
			}
			return pidsOf(snap), nil
		}).Should(Equal([]int32{1, 900}))

		ev, err := tf.Client().Events(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Counts[events.ProcessReadFailed]).To(BeNumerically(">=", 1))

		tf.Provider().FailProcess(417, nil)
		Eventually(func() ([]int32, error) {
			snap, err := tf.Client().Current(ctx)
			if err != nil || snap == nil {
				return nil, err
			}
			return pidsOf(snap), nil
		}).Should(ContainElement(int32(417)))
	})

	It("returns contiguous history after a cursor", func() {
		Eventually(func() int { return tf.Store().Len() }).Should(BeNumerically(">=", 4))

		h, err := tf.Client().HistorySince(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Gap).To(BeFalse())
		Expect(h.Snapshots).NotTo(BeEmpty())
		for i, snap := range h.Snapshots {
			Expect(snap.Seq).To(Equal(uint64(i + 2)))
		}
	})

	It("answers a long poll with the next snapshot", func() {
		current, err := tf.Client().Current(ctx)
		Expect(err).NotTo(HaveOccurred())

		h, err := tf.Client().Poll(ctx, current.Seq, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(h).NotTo(BeNil())
		Expect(h.Snapshots).NotTo(BeEmpty())
		Expect(h.Snapshots[0].Seq).To(BeNumerically(">", current.Seq))
	})

	It("streams only snapshots published after subscribing", func() {
		current, err := tf.Client().Current(ctx)
		Expect(err).NotTo(HaveOccurred())

		stream, err := tf.Client().Stream(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(stream.Close)

		prev := nextSnapshot(stream)
		Expect(prev.Seq).To(BeNumerically(">=", current.Seq))
		for i := 0; i < 3; i++ {
			snap := nextSnapshot(stream)
			Expect(snap.Seq).To(BeNumerically(">", prev.Seq))
			prev = snap
		}
	})

	It("resumes a stream without duplicates", func() {
		Eventually(func() int { return tf.Store().Len() }).Should(BeNumerically(">=", 3))
		since := uint64(1)

		stream, err := tf.Client().Stream(ctx, &since)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(stream.Close)

		want := uint64(2)
		for want < 8 {
			snap := nextSnapshot(stream)
			Expect(snap.Seq).To(Equal(want))
			want++
		}
	})

	It("exposes prometheus metrics", func() {
		fams, err := tf.Client().MetricFamilies(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(fams).To(HaveKey("procview_snapshot_sequence"))
		Expect(fams).To(HaveKey("procview_events_total"))
		Expect(fams["procview_processes"].GetMetric()[0].GetGauge().GetValue()).To(Equal(3.0))
	})

	It("reports averages over a window", func() {
		Eventually(func() int { return tf.Store().Len() }).Should(BeNumerically(">=", 2))
		stats, err := tf.Client().Stats(ctx, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Samples).To(BeNumerically(">=", 2))
		// The mock reports two cores at 10% and 30%.
		Expect(stats.AverageCPUPercent).To(BeNumerically("~", 20, 0.001))
		Expect(stats.AverageMemoryBytes).To(Equal(uint64(1 << 29)))
	})
})

var _ = Describe("History eviction", func() {
	It("flags a gap when the cursor was evicted", func() {
		tf := StartFramework(framework.WithHistory(3))
		Eventually(func() uint64 {
			if snap := tf.Store().Current(); snap != nil {
				return snap.Seq
			}
			return 0
		}).Should(BeNumerically(">=", 6))

		h, err := tf.Client().HistorySince(context.Background(), 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Gap).To(BeTrue())
		Expect(h.Missed).To(BeNumerically(">=", 2))
		Expect(h.Snapshots).To(HaveLen(3))
	})
})

var _ = Describe("Shutdown", func() {
	It("ends open streams cleanly", func() {
		tf := StartFramework()

		stream, err := tf.Client().Stream(context.Background(), nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(stream.Close)
		nextSnapshot(stream)

		Expect(tf.TearDown()).To(Succeed())

		Eventually(func() error {
			_, err := stream.Next()
			return err
		}).Should(MatchError(client.ErrStreamEnded))

		_, err = tf.Publisher().Subscribe()
		Expect(err).To(HaveOccurred())
	})

	It("stops when the provider becomes unavailable", func() {
		tf := StartFramework()
		tf.Provider().SetSystemError(errors.New("procfs gone"))

		Eventually(tf.Stopped()).Should(BeClosed())
		Expect(tf.Err()).To(MatchError(sysinfo.ErrProviderUnavailable))
		Expect(tf.Recorder().Count(events.ProviderUnavailable)).To(BeNumerically(">=", 1))
	})
})
