package server

import (
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

const (
	gzipBlockSize = 64 << 10
	gzipBlocks    = 4
)

var gzipWriters = sync.Pool{
	New: func() interface{} {
		gz, _ := pgzip.NewWriterLevel(nil, pgzip.BestSpeed)
		return gz
	},
}

// gzipResponseWriter compresses the body only once something is written, so
// bodiless responses such as 204 stay bodiless.
type gzipResponseWriter struct {
	http.ResponseWriter
	gz          *pgzip.Writer
	wroteHeader bool
	compress    bool
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if status != http.StatusNoContent && status != http.StatusNotModified && status >= http.StatusOK {
		w.compress = true
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if !w.compress {
		return w.ResponseWriter.Write(b)
	}
	if w.gz == nil {
		w.gz = gzipWriters.Get().(*pgzip.Writer)
		w.gz.Reset(w.ResponseWriter)
		// Reset restores the default of one megabyte per core.
		if err := w.gz.SetConcurrency(gzipBlockSize, gzipBlocks); err != nil {
			log.WithError(err).Debug("failed to tune gzip concurrency")
		}
	}
	return w.gz.Write(b)
}

func (w *gzipResponseWriter) close() {
	if w.gz == nil {
		return
	}
	if err := w.gz.Close(); err != nil {
		log.WithError(err).Debug("failed to finish gzip stream")
	}
	gzipWriters.Put(w.gz)
	w.gz = nil
}

func acceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.SplitN(enc, ";", 2)[0]) == "gzip" {
			return true
		}
	}
	return false
}

// compressed gzips the response of h when the client accepts it.
func compressed(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")
		if !acceptsGzip(r) {
			h(w, r)
			return
		}
		gw := &gzipResponseWriter{ResponseWriter: w}
		defer gw.close()
		h(gw, r)
	})
}
