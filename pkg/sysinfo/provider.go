package sysinfo

import "context"

// Provider supplies raw OS metrics on demand.
//
// SampleSystem must fail with an error wrapping ErrProviderUnavailable when CPU
// or memory totals cannot be read. SampleProcesses returns the rows it could
// read together with a combined error holding one *ProcessReadError per row it
// could not.
type Provider interface {
	SampleSystem(ctx context.Context) (*SystemStats, error)
	SampleProcesses(ctx context.Context) ([]ProcessInfo, error)
}
