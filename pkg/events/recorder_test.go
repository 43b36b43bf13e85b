package events

import (
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		args     []interface{}
		expected string
	}{
		{
			name:     "simple message",
			format:   "sampler overrun",
			expected: "sampler overrun",
		},
		{
			name:     "message with formatting",
			format:   "reading process %d: %s",
			args:     []interface{}{417, "permission denied"},
			expected: "reading process 417: permission denied",
		},
		{
			name:     "message with newlines and tabs",
			format:   "line1\nline2\tline3\rline4",
			expected: "line1 line2 line3 line4",
		},
		{
			name:     "message with multiple spaces",
			format:   "  too    many     spaces ",
			expected: "too many spaces",
		},
		{
			name:     "long message gets truncated",
			format:   strings.Repeat("a", 300),
			expected: strings.Repeat("a", maxMessageLength-3) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatMessage(tt.format, tt.args...))
		})
	}
}

func TestRecorder_CountsAndRecent(t *testing.T) {
	r := NewRecorder(2)

	r.Record(SamplerOverrun, nil, "tick %d skipped", 1)
	r.Record(SamplerOverrun, nil, "tick %d skipped", 2)
	r.Record(SubscriberLagging, log.Fields{"subscriber": 7}, "queue full")

	assert.Equal(t, uint64(2), r.Count(SamplerOverrun))
	assert.Equal(t, uint64(1), r.Count(SubscriberLagging))
	assert.Equal(t, uint64(0), r.Count(HistoryGap))

	recent := r.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "tick 2 skipped", recent[0].Message)
	assert.Equal(t, SubscriberLagging, recent[1].Kind)
	assert.Equal(t, 7, recent[1].Fields["subscriber"])

	counts := r.Counts()
	assert.Len(t, counts, len(Kinds))
	assert.Equal(t, uint64(2), counts[SamplerOverrun])
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.Record(SamplerOverrun, nil, "ignored")
	assert.Equal(t, uint64(0), r.Count(SamplerOverrun))
	assert.Nil(t, r.Recent())
	assert.Equal(t, uint64(0), r.Counts()[SamplerOverrun])
}
