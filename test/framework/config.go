package framework

import (
	"time"

	"github.com/voluzi/procview/pkg/sysinfo"
)

func defaultConfig() *Configs {
	return &Configs{
		Interval:          50 * time.Millisecond,
		History:           20,
		QueueSize:         4,
		MaxStalled:        8,
		StreamIdleTimeout: 10 * time.Second,
	}
}

type Configs struct {
	Interval          time.Duration
	History           int
	QueueSize         int
	MaxStalled        int
	StreamIdleTimeout time.Duration
	Processes         []sysinfo.ProcessInfo
}

type Config func(*Configs)

func WithInterval(d time.Duration) Config {
	return func(cfgs *Configs) {
		cfgs.Interval = d
	}
}

func WithHistory(n int) Config {
	return func(cfgs *Configs) {
		cfgs.History = n
	}
}

func WithQueueSize(n int) Config {
	return func(cfgs *Configs) {
		cfgs.QueueSize = n
	}
}

func WithMaxStalled(n int) Config {
	return func(cfgs *Configs) {
		cfgs.MaxStalled = n
	}
}

func WithStreamIdleTimeout(d time.Duration) Config {
	return func(cfgs *Configs) {
		cfgs.StreamIdleTimeout = d
	}
}

func WithProcesses(processes ...sysinfo.ProcessInfo) Config {
	return func(cfgs *Configs) {
		cfgs.Processes = processes
	}
}
