package sysinfo

import (
	"path"

	"github.com/c2h5oh/datasize"
)

// Filter decides which process rows end up in a snapshot.
type Filter struct {
	// HideUnnamed drops processes without a name (kernel threads on some platforms).
	HideUnnamed bool `toml:"hide_unnamed" yaml:"hide_unnamed"`
	// Exclude holds glob patterns matched against the process name.
	Exclude []string `toml:"exclude" yaml:"exclude"`
	// MinRSS drops processes using less resident memory than this.
	MinRSS datasize.ByteSize `toml:"min_rss" yaml:"min_rss"`
}

// DefaultFilter mirrors the viewer's historical behaviour of hiding unnamed processes.
func DefaultFilter() Filter {
	return Filter{HideUnnamed: true}
}

// Keep reports whether p passes the filter.
func (f *Filter) Keep(p ProcessInfo) bool {
	if f == nil {
		return true
	}
	if f.HideUnnamed && p.Name == "" {
		return false
	}
	if f.MinRSS > 0 && p.RSS < uint64(f.MinRSS) {
		return false
	}
	for _, pattern := range f.Exclude {
		if ok, err := path.Match(pattern, p.Name); err == nil && ok {
			return false
		}
	}
	return true
}

// Apply returns the rows that pass the filter, preserving order.
func (f *Filter) Apply(processes []ProcessInfo) []ProcessInfo {
	out := make([]ProcessInfo, 0, len(processes))
	for _, p := range processes {
		if f.Keep(p) {
			out = append(out, p)
		}
	}
	return out
}
