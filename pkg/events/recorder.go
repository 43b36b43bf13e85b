package events

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Kind identifies a recoverable (or fatal) pipeline condition.
type Kind string

const (
	SamplerOverrun      Kind = "sampler_overrun"
	ProcessReadFailed   Kind = "process_read_failed"
	SubscriberLagging   Kind = "subscriber_lagging"
	SubscriberDropped   Kind = "subscriber_dropped"
	HistoryGap          Kind = "history_gap"
	ProviderUnavailable Kind = "provider_unavailable"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{
	SamplerOverrun,
	ProcessReadFailed,
	SubscriberLagging,
	SubscriberDropped,
	HistoryGap,
	ProviderUnavailable,
}

const DefaultRecentEvents = 100

type Event struct {
	Kind    Kind                   `json:"kind"`
	Time    time.Time              `json:"time"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Recorder counts events per kind and keeps the most recent ones.
// A nil *Recorder discards everything.
type Recorder struct {
	counts map[Kind]*atomic.Uint64

	mu        sync.Mutex
	recent    []Event
	maxRecent int
}

func NewRecorder(maxRecent int) *Recorder {
	if maxRecent <= 0 {
		maxRecent = DefaultRecentEvents
	}
	r := &Recorder{
		counts:    make(map[Kind]*atomic.Uint64, len(Kinds)),
		maxRecent: maxRecent,
	}
	for _, k := range Kinds {
		r.counts[k] = new(atomic.Uint64)
	}
	return r
}

// Record counts, logs and stores one event.
func (r *Recorder) Record(kind Kind, fields log.Fields, format string, args ...interface{}) {
	if r == nil {
		return
	}
	msg := FormatMessage(format, args...)

	if c, ok := r.counts[kind]; ok {
		c.Add(1)
	}

	entry := log.WithField("event", kind)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	if kind == ProviderUnavailable {
		entry.Error(msg)
	} else {
		entry.Warn(msg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent = append(r.recent, Event{
		Kind:    kind,
		Time:    time.Now(),
		Message: msg,
		Fields:  fields,
	})
	if len(r.recent) > r.maxRecent {
		r.recent = r.recent[len(r.recent)-r.maxRecent:]
	}
}

func (r *Recorder) Count(kind Kind) uint64 {
	if r == nil {
		return 0
	}
	if c, ok := r.counts[kind]; ok {
		return c.Load()
	}
	return 0
}

func (r *Recorder) Counts() map[Kind]uint64 {
	out := make(map[Kind]uint64, len(Kinds))
	for _, k := range Kinds {
		out[k] = r.Count(k)
	}
	return out
}

// Recent returns a copy of the retained events, oldest first.
func (r *Recorder) Recent() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.recent...)
}
