package snapstore

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/sysinfo"
)

// HistoryResult is the answer to a history query.
//
// Gap is set when part of the requested range was already evicted (Missed
// holds how many snapshots were lost) or when the cursor is ahead of the
// store, which happens after a restart. Callers must surface it.
type HistoryResult struct {
	Snapshots []*sysinfo.Snapshot `json:"snapshots"`
	Gap       bool                `json:"gap"`
	Missed    uint64              `json:"missed"`
}

// History returns the snapshots with a sequence greater than since, oldest first.
func (s *Store) History(since uint64) HistoryResult {
	history := s.state.Load().history
	if len(history) == 0 {
		return HistoryResult{Snapshots: []*sysinfo.Snapshot{}}
	}

	oldest, newest := history[0].Seq, history[len(history)-1].Seq

	if since > newest {
		s.recorder.Record(events.HistoryGap, log.Fields{"since": since, "newest": newest},
			"history cursor %d is ahead of newest snapshot %d", since, newest)
		return HistoryResult{
			Snapshots: append([]*sysinfo.Snapshot(nil), history...),
			Gap:       true,
		}
	}

	result := HistoryResult{}
	if since+1 < oldest {
		result.Gap = true
		result.Missed = oldest - since - 1
		s.recorder.Record(events.HistoryGap, log.Fields{"since": since, "oldest": oldest},
			"%d snapshots after %d were evicted", result.Missed, since)
	}

	i := sort.Search(len(history), func(i int) bool {
		return history[i].Seq > since
	})
	result.Snapshots = append(make([]*sysinfo.Snapshot, 0, len(history)-i), history[i:]...)
	return result
}
