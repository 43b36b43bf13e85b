package server

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/voluzi/procview/pkg/api"
	"github.com/voluzi/procview/pkg/sysinfo"
)

// poll answers with everything after the given sequence as soon as there is
// something to answer with. Without after it waits for the next snapshot.
func (s *Server) poll(w http.ResponseWriter, r *http.Request) {
	after, hasAfter, err := parseSeq(r, "after")
	if err != nil {
		http.Error(w, "invalid after: "+err.Error(), http.StatusBadRequest)
		return
	}
	timeout, err := parseDuration(r, "timeout", s.cfg.MaxPollTimeout)
	if err != nil {
		http.Error(w, "invalid timeout: "+err.Error(), http.StatusBadRequest)
		return
	}
	if timeout > s.cfg.MaxPollTimeout {
		timeout = s.cfg.MaxPollTimeout
	}

	// Subscribe before looking at the store so nothing published in between
	// is lost.
	sub, err := s.publisher.Subscribe()
	if err != nil {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	if hasAfter {
		if res := s.store.History(after); res.Gap || len(res.Snapshots) > 0 {
			writeJSON(w, http.StatusOK, api.History{Snapshots: res.Snapshots, Gap: res.Gap, Missed: res.Missed})
			return
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("poll client went away")
			return
		case <-timer.C:
			w.WriteHeader(http.StatusNoContent)
			return
		case snap, ok := <-sub.C():
			if !ok {
				http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
				return
			}
			if hasAfter && snap.Seq <= after {
				continue
			}
			writeJSON(w, http.StatusOK, api.History{Snapshots: []*sysinfo.Snapshot{snap}})
			return
		}
	}
}
