package sysinfo

import (
	"fmt"

	"emperror.dev/errors"
)

// ErrProviderUnavailable means system-wide CPU or memory metrics could not be read.
const ErrProviderUnavailable = errors.Sentinel("metrics provider unavailable")

// ProcessReadError is returned for a single process row that could not be read.
type ProcessReadError struct {
	PID int32
	Err error
}

func (e *ProcessReadError) Error() string {
	return fmt.Sprintf("reading process %d: %v", e.PID, e.Err)
}

func (e *ProcessReadError) Unwrap() error {
	return e.Err
}

// ProcessReadErrors extracts every per-row failure combined into err.
func ProcessReadErrors(err error) []*ProcessReadError {
	if err == nil {
		return nil
	}
	var out []*ProcessReadError
	for _, e := range errors.GetErrors(err) {
		var pe *ProcessReadError
		if errors.As(e, &pe) {
			out = append(out, pe)
		}
	}
	return out
}
