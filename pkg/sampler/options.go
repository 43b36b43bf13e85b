package sampler

import (
	"time"

	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/sysinfo"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultIdleTimeout = 10 * time.Minute
)

func defaultOptions() *Options {
	return &Options{
		Interval:    DefaultInterval,
		IdleTimeout: DefaultIdleTimeout,
		Filter:      sysinfo.DefaultFilter(),
	}
}

type Options struct {
	Interval time.Duration
	// IdleTimeout suspends sampling when no activity was reported for this
	// long. Zero samples forever.
	IdleTimeout time.Duration
	Filter      sysinfo.Filter
	Recorder    *events.Recorder
}

type Option func(*Options)

func WithInterval(d time.Duration) Option {
	return func(opts *Options) {
		if d > 0 {
			opts.Interval = d
		}
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.IdleTimeout = d
	}
}

func WithFilter(f sysinfo.Filter) Option {
	return func(opts *Options) {
		opts.Filter = f
	}
}

func WithRecorder(r *events.Recorder) Option {
	return func(opts *Options) {
		opts.Recorder = r
	}
}
