package sampler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/sysinfo"
)

// ErrSamplerOverrun is returned by Tick when the previous tick has not finished.
const ErrSamplerOverrun = errors.Sentinel("previous sample still in flight")

// Publisher receives every snapshot the sampler produces.
type Publisher interface {
	Publish(snapshot *sysinfo.Snapshot) error
}

// Sampler periodically turns provider readings into snapshots. It is the only
// writer of its Publisher.
type Sampler struct {
	cfg      *Options
	provider sysinfo.Provider
	store    Publisher
	recorder *events.Recorder

	inFlight     atomic.Bool
	seq          atomic.Uint64
	filter       atomic.Pointer[sysinfo.Filter]
	lastActivity atomic.Int64
	suspended    atomic.Bool
	now          func() time.Time
}

func New(provider sysinfo.Provider, store Publisher, opts ...Option) *Sampler {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	s := &Sampler{
		cfg:      options,
		provider: provider,
		store:    store,
		recorder: options.Recorder,
		now:      time.Now,
	}
	f := options.Filter
	s.filter.Store(&f)
	s.lastActivity.Store(s.now().UnixNano())
	return s
}

// SetFilter replaces the process filter used from the next tick on.
func (s *Sampler) SetFilter(f sysinfo.Filter) {
	s.filter.Store(&f)
	log.WithFields(log.Fields{
		"hide-unnamed": f.HideUnnamed,
		"exclude":      f.Exclude,
		"min-rss":      f.MinRSS.HumanReadable(),
	}).Info("process filter updated")
}

func (s *Sampler) Filter() sysinfo.Filter {
	return *s.filter.Load()
}

// Touch records client activity, keeping sampling alive.
func (s *Sampler) Touch() {
	s.lastActivity.Store(s.now().UnixNano())
}

// Idle reports whether sampling is currently suspended for lack of activity.
func (s *Sampler) Idle() bool {
	if s.cfg.IdleTimeout <= 0 {
		return false
	}
	last := time.Unix(0, s.lastActivity.Load())
	return s.now().Sub(last) > s.cfg.IdleTimeout
}

// Tick samples the provider once and publishes the snapshot. It refuses to
// run while a previous tick is in flight.
func (s *Sampler) Tick(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.recorder.Record(events.SamplerOverrun, log.Fields{"interval": s.cfg.Interval},
			"sampler overrun: previous tick still running, skipping")
		return ErrSamplerOverrun
	}
	defer s.inFlight.Store(false)

	system, err := s.provider.SampleSystem(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.recorder.Record(events.ProviderUnavailable, nil, "system metrics unavailable: %v", err)
		if !errors.Is(err, sysinfo.ErrProviderUnavailable) {
			err = errors.Wrap(sysinfo.ErrProviderUnavailable, err.Error())
		}
		return err
	}

	processes, err := s.provider.SampleProcesses(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		s.recordProcessErrors(err)
	}

	snapshot := &sysinfo.Snapshot{
		Timestamp:  s.now(),
		Host:       system.Host,
		CPUs:       system.CPUs,
		Load:       system.Load,
		Memory:     system.Memory,
		Disks:      system.Disks,
		Network:    system.Network,
		Components: system.Components,
		Processes:  s.filter.Load().Apply(processes),
	}
	snapshot.Seq = s.seq.Load() + 1

	if err := s.store.Publish(snapshot); err != nil {
		return errors.WrapIf(err, "publishing snapshot")
	}
	s.seq.Store(snapshot.Seq)
	return nil
}

func (s *Sampler) recordProcessErrors(err error) {
	failures := sysinfo.ProcessReadErrors(err)
	if len(failures) == 0 {
		// Listing itself failed; the snapshot goes out without processes.
		s.recorder.Record(events.ProcessReadFailed, nil, "listing processes: %v", err)
		return
	}
	for _, f := range failures {
		s.recorder.Record(events.ProcessReadFailed, log.Fields{"pid": f.PID}, "%v", f)
	}
}

// Run samples immediately and then once per interval until ctx is cancelled
// or the provider becomes unavailable. Every tick runs on its own goroutine so
// a slow provider makes later ticks overrun rather than pile up.
func (s *Sampler) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"interval":     s.cfg.Interval,
		"idle-timeout": s.cfg.IdleTimeout,
	}).Info("sampler started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	fatal := make(chan error, 1)
	tick := func() {
		if s.Idle() {
			if !s.suspended.Swap(true) {
				log.WithField("idle-timeout", s.cfg.IdleTimeout).Info("no recent activity, suspending sampling")
			}
			return
		}
		if s.suspended.Swap(false) {
			log.Info("activity detected, resuming sampling")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Tick(ctx)
			switch {
			case err == nil, errors.Is(err, ErrSamplerOverrun), ctx.Err() != nil:
			case errors.Is(err, sysinfo.ErrProviderUnavailable):
				select {
				case fatal <- err:
				default:
				}
			default:
				log.WithError(err).Error("sampling failed")
			}
		}()
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			log.Info("sampler stopped")
			return nil
		case err := <-fatal:
			return err
		case <-ticker.C:
			tick()
		}
	}
}
