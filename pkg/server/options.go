package server

import "time"

const (
	DefaultAddress           = "localhost:3000"
	DefaultStreamIdleTimeout = time.Minute
	DefaultPollTimeout       = 30 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultStatsWindow       = 5 * time.Minute
)

func defaultOptions() *Options {
	return &Options{
		Address:           DefaultAddress,
		StreamIdleTimeout: DefaultStreamIdleTimeout,
		MaxPollTimeout:    DefaultPollTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
	}
}

type Options struct {
	Address string
	// StreamIdleTimeout closes a stream that received nothing for this long.
	StreamIdleTimeout time.Duration
	// MaxPollTimeout caps how long a long-poll request may wait.
	MaxPollTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type Option func(*Options)

func WithAddress(addr string) Option {
	return func(opts *Options) {
		if addr != "" {
			opts.Address = addr
		}
	}
}

func WithStreamIdleTimeout(d time.Duration) Option {
	return func(opts *Options) {
		if d > 0 {
			opts.StreamIdleTimeout = d
		}
	}
}

func WithMaxPollTimeout(d time.Duration) Option {
	return func(opts *Options) {
		if d > 0 {
			opts.MaxPollTimeout = d
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(opts *Options) {
		if d > 0 {
			opts.ShutdownTimeout = d
		}
	}
}
