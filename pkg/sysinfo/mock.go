package sysinfo

import (
	"context"
	"sync"

	"emperror.dev/errors"
)

// MockProvider is a scriptable Provider used by tests and demos.
type MockProvider struct {
	mu        sync.Mutex
	system    SystemStats
	systemErr error
	processes []ProcessInfo
	failing   map[int32]error
	listErr   error
	gate      chan struct{}
	calls     int
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider returns a provider with two cores, 1GiB of memory and the given processes.
func NewMockProvider(processes ...ProcessInfo) *MockProvider {
	return &MockProvider{
		system: SystemStats{
			Host: HostInfo{Hostname: "mock"},
			CPUs: []CPUCore{{Name: "cpu0", Usage: 10}, {Name: "cpu1", Usage: 30}},
			Memory: MemoryStats{
				Total:     1 << 30,
				Used:      1 << 29,
				Free:      1 << 29,
				Available: 1 << 29,
			},
		},
		processes: processes,
		failing:   make(map[int32]error),
	}
}

func (m *MockProvider) SetSystem(stats SystemStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = stats
}

// SetSystemError makes SampleSystem fail. A nil error restores it.
func (m *MockProvider) SetSystemError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemErr = err
}

func (m *MockProvider) SetProcesses(processes ...ProcessInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processes = processes
}

// FailProcess makes reads of pid fail with err. A nil error clears the failure.
func (m *MockProvider) FailProcess(pid int32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, pid)
		return
	}
	m.failing[pid] = err
}

// SetListError makes listing processes fail as a whole.
func (m *MockProvider) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// Block makes subsequent SampleSystem calls wait until Unblock is called or
// their context is done.
func (m *MockProvider) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

func (m *MockProvider) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Calls returns how many times SampleSystem was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockProvider) SampleSystem(ctx context.Context) (*SystemStats, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.systemErr != nil {
		return nil, errors.Wrap(ErrProviderUnavailable, m.systemErr.Error())
	}
	stats := m.system
	stats.CPUs = append([]CPUCore(nil), m.system.CPUs...)
	return &stats, nil
}

func (m *MockProvider) SampleProcesses(ctx context.Context) ([]ProcessInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	rows := make([]ProcessInfo, 0, len(m.processes))
	var errs []error
	for _, p := range m.processes {
		if err, ok := m.failing[p.PID]; ok {
			errs = append(errs, &ProcessReadError{PID: p.PID, Err: err})
			continue
		}
		rows = append(rows, p)
	}
	return rows, errors.Combine(errs...)
}
