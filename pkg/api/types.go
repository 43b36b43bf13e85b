// Package api holds the JSON documents exchanged between the procview server
// and its clients.
package api

import (
	"time"

	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/sysinfo"
)

// History is the body of /api/history and /api/poll.
type History struct {
	Snapshots []*sysinfo.Snapshot `json:"snapshots"`
	// Gap means snapshots were missed; the client should reload.
	Gap    bool   `json:"gap"`
	Missed uint64 `json:"missed"`
}

type MessageType string

const (
	MessageSnapshot MessageType = "snapshot"
	MessageGap      MessageType = "gap"
	MessageLagging  MessageType = "lagging"
)

// StreamMessage is one WebSocket frame of /api/stream.
type StreamMessage struct {
	Type     MessageType       `json:"type"`
	Snapshot *sysinfo.Snapshot `json:"snapshot,omitempty"`
	// Missed is set on gap messages.
	Missed uint64 `json:"missed,omitempty"`
	// Dropped is set on lagging messages.
	Dropped uint64 `json:"dropped,omitempty"`
}

// Stats is the body of /api/stats.
type Stats struct {
	Window             time.Duration `json:"window"`
	Samples            int           `json:"samples"`
	AverageCPUPercent  float64       `json:"avg_cpu_percent"`
	AverageMemoryBytes uint64        `json:"avg_memory_bytes"`
	Retained           int           `json:"retained"`
	Capacity           int           `json:"capacity"`
	Subscribers        int           `json:"subscribers"`
	Idle               bool          `json:"idle"`
}

// Events is the body of /api/events.
type Events struct {
	Counts map[events.Kind]uint64 `json:"counts"`
	Recent []events.Event         `json:"recent"`
}
