package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"emperror.dev/errors"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/publisher"
	"github.com/voluzi/procview/pkg/sampler"
	"github.com/voluzi/procview/pkg/snapstore"
)

// Server exposes the snapshot pipeline over HTTP and owns its lifecycle: the
// sampler runs for as long as the server is serving.
type Server struct {
	server    *http.Server
	router    *mux.Router
	cfg       *Options
	store     *snapstore.Store
	publisher *publisher.Publisher
	sampler   *sampler.Sampler
	recorder  *events.Recorder

	closing       atomic.Bool
	samplerCtx    context.Context
	cancelSampler context.CancelFunc
	samplerDone   chan struct{}
	started       bool
	mu            sync.Mutex
	stopOnce      sync.Once
	stopped       chan struct{}
	stopErr       error
	fatal         error
}

// New builds a server around an already wired pipeline. The store is expected
// to notify the publisher.
func New(store *snapstore.Store, pub *publisher.Publisher, smp *sampler.Sampler, recorder *events.Recorder, opts ...Option) *Server {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:        mux.NewRouter(),
		cfg:           options,
		store:         store,
		publisher:     pub,
		sampler:       smp,
		recorder:      recorder,
		samplerCtx:    ctx,
		cancelSampler: cancel,
		samplerDone:   make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:    options.Address,
		Handler: s.router,
	}
	return s
}

// Handler returns the root handler, mostly useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and blocks until the server stops.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return errors.WrapIff(err, "listening on %s", s.cfg.Address)
	}
	return s.Serve(l)
}

// Serve starts the sampler and serves HTTP on l until Stop is called or the
// sampler fails. A sampler failure is returned once shutdown completes.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = l.Close()
		return http.ErrServerClosed
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.samplerDone)
		if err := s.sampler.Run(s.samplerCtx); err != nil {
			log.WithError(err).Error("sampler failed, shutting down")
			s.fatal = err
			go s.Stop()
		}
	}()

	log.Infof("server started listening on %s", l.Addr())
	if err := s.server.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		_ = s.Stop()
		return err
	}
	<-s.stopped
	if s.fatal != nil {
		return s.fatal
	}
	return s.stopErr
}

// Stop shuts everything down in order: the sampler first so nothing new is
// published, then the publisher so every stream ends cleanly, then the HTTP
// server. It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		defer close(s.stopped)

		s.mu.Lock()
		s.closing.Store(true)
		started := s.started
		s.mu.Unlock()

		s.cancelSampler()
		if started {
			<-s.samplerDone
		}
		s.publisher.Close()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.stopErr = errors.WrapIf(err, "shutting down http server")
		}
		log.Info("server stopped")
	})
	<-s.stopped
	return s.stopErr
}
