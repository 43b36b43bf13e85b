package server

import (
	_ "embed"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/procview/pkg/api"
	"github.com/voluzi/procview/pkg/sysinfo"
)

//go:embed index.html
var indexHTML []byte

//go:embed favicon.ico
var faviconICO []byte

func (s *Server) registerRoutes() {
	s.router.Use(logRequests)

	s.router.Handle("/", compressed(s.index)).Methods(http.MethodGet)
	s.router.Handle("/favicon.ico", compressed(s.favicon)).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	s.router.Handle("/metrics", compressed(s.metrics)).Methods(http.MethodGet)

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiRouter.Use(s.touch)
	apiRouter.Handle("/snapshot", compressed(s.snapshot)).Methods(http.MethodGet)
	apiRouter.Handle("/history", compressed(s.history)).Methods(http.MethodGet)
	apiRouter.Handle("/poll", compressed(s.poll)).Methods(http.MethodGet)
	apiRouter.Handle("/stats", compressed(s.stats)).Methods(http.MethodGet)
	apiRouter.Handle("/events", compressed(s.events)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/stream", s.stream).Methods(http.MethodGet)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start),
		}).Debug("handled request")
	})
}

// touch marks API traffic as activity so the sampler keeps running.
func (s *Server) touch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sampler.Touch()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("error encoding response to json: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// parseSeq reads an optional sequence number query parameter.
func parseSeq(r *http.Request, name string) (uint64, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return seq, true, nil
}

func parseDuration(r *http.Request, name string, def time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, strconv.ErrRange
	}
	return d, nil
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexHTML)
}

func (s *Server) favicon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/x-icon")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(faviconICO)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.store.Current() == nil {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	current := s.store.Current()
	if current == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	since, ok, err := parseSeq(r, "since")
	if err != nil {
		http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, api.History{
			Snapshots: append([]*sysinfo.Snapshot{}, s.store.Snapshots()...),
		})
		return
	}
	res := s.store.History(since)
	writeJSON(w, http.StatusOK, api.History{
		Snapshots: res.Snapshots,
		Gap:       res.Gap,
		Missed:    res.Missed,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	window, err := parseDuration(r, "window", DefaultStatsWindow)
	if err != nil {
		http.Error(w, "invalid window: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, api.Stats{
		Window:             window,
		Samples:            len(s.store.Within(window)),
		AverageCPUPercent:  s.store.AverageCPUUsage(window),
		AverageMemoryBytes: s.store.AverageMemoryUsage(window),
		Retained:           s.store.Len(),
		Capacity:           s.store.Capacity(),
		Subscribers:        s.publisher.Len(),
		Idle:               s.sampler.Idle(),
	})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Events{
		Counts: s.recorder.Counts(),
		Recent: s.recorder.Recent(),
	})
}
