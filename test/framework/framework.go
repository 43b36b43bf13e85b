// Package framework runs a complete procview server in-process, backed by a
// scriptable provider, for the integration suite.
package framework

import (
	"net"
	"time"

	"emperror.dev/errors"

	"github.com/voluzi/procview/pkg/client"
	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/publisher"
	"github.com/voluzi/procview/pkg/sampler"
	"github.com/voluzi/procview/pkg/server"
	"github.com/voluzi/procview/pkg/snapstore"
	"github.com/voluzi/procview/pkg/sysinfo"
)

// Framework owns one running server.
type Framework struct {
	cfg       *Configs
	provider  *sysinfo.MockProvider
	recorder  *events.Recorder
	store     *snapstore.Store
	publisher *publisher.Publisher
	sampler   *sampler.Sampler
	server    *server.Server
	client    *client.Client
	stopped   chan struct{}
	err       error
}

func New(opts ...Config) *Framework {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Framework{cfg: cfg}
}

// Setup builds the pipeline and starts serving on a random local port.
func (f *Framework) Setup() error {
	f.provider = sysinfo.NewMockProvider(f.cfg.Processes...)
	f.recorder = events.NewRecorder(events.DefaultRecentEvents)
	f.publisher = publisher.New(
		publisher.WithQueueSize(f.cfg.QueueSize),
		publisher.WithMaxStalled(f.cfg.MaxStalled),
		publisher.WithRecorder(f.recorder),
	)
	f.store = snapstore.New(f.cfg.History,
		snapstore.WithNotifier(f.publisher),
		snapstore.WithRecorder(f.recorder),
	)
	f.sampler = sampler.New(f.provider, f.store,
		sampler.WithInterval(f.cfg.Interval),
		sampler.WithIdleTimeout(0),
		sampler.WithRecorder(f.recorder),
	)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return errors.WrapIf(err, "listening")
	}
	f.server = server.New(f.store, f.publisher, f.sampler, f.recorder,
		server.WithStreamIdleTimeout(f.cfg.StreamIdleTimeout),
		server.WithShutdownTimeout(2*time.Second),
	)
	f.client = client.NewClient(l.Addr().String())

	f.stopped = make(chan struct{})
	go func() {
		defer close(f.stopped)
		f.err = f.server.Serve(l)
	}()
	return nil
}

// TearDown stops the server and returns whatever Serve returned.
func (f *Framework) TearDown() error {
	if f.server == nil {
		return nil
	}
	if err := f.server.Stop(); err != nil {
		return err
	}
	<-f.stopped
	return f.err
}

// Stopped is closed once Serve returned.
func (f *Framework) Stopped() <-chan struct{} {
	return f.stopped
}

// Err returns what Serve returned. Only valid after Stopped is closed.
func (f *Framework) Err() error {
	return f.err
}

func (f *Framework) Client() *client.Client {
	return f.client
}

func (f *Framework) Provider() *sysinfo.MockProvider {
	return f.provider
}

func (f *Framework) Recorder() *events.Recorder {
	return f.recorder
}

func (f *Framework) Publisher() *publisher.Publisher {
	return f.publisher
}

func (f *Framework) Store() *snapstore.Store {
	return f.store
}
