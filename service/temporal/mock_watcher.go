package temporal

import (
	"context"
	"sync"

	"github.com/brojonat/roxscan/service/cluster"
)

// MockWatcher is a mock implementation of Watcher for testing.
type MockWatcher struct {
	mu        sync.Mutex
	watches   map[string]*WatchStatus // map[workflowID]status
	inputs    map[string]WatchInput
	startErr  error
	cancelErr error
}

// NewMockWatcher creates a new MockWatcher.
func NewMockWatcher() *MockWatcher {
	return &MockWatcher{
		watches: make(map[string]*WatchStatus),
		inputs:  make(map[string]WatchInput),
	}
}

// StartWatch records a running watch. Starting an existing watch is a no-op.
func (m *MockWatcher) StartWatch(ctx context.Context, input WatchInput) (*WatchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return nil, m.startErr
	}

	input = input.withDefaults()
	id := WatchID(input.Cluster, input.Signature)
	if w, ok := m.watches[id]; ok && w.Status == WatchRunning {
		return &WatchRun{WorkflowID: id, RunID: w.RunID}, nil
	}

	w := &WatchStatus{WorkflowID: id, RunID: "run-" + input.Signature, Status: WatchRunning}
	m.watches[id] = w
	m.inputs[id] = input
	return &WatchRun{WorkflowID: id, RunID: w.RunID}, nil
}

// DescribeWatch returns the recorded watch.
func (m *MockWatcher) DescribeWatch(ctx context.Context, c cluster.Cluster, signature string) (*WatchStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watches[WatchID(c, signature)]
	if !ok {
		return nil, ErrWatchNotFound
	}
	cp := *w
	return &cp, nil
}

// CancelWatch marks a running watch as cancelled.
func (m *MockWatcher) CancelWatch(ctx context.Context, c cluster.Cluster, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelErr != nil {
		return m.cancelErr
	}
	w, ok := m.watches[WatchID(c, signature)]
	if !ok {
		return ErrWatchNotFound
	}
	w.Status = WatchCancelled
	return nil
}

// SetStartError makes StartWatch return an error.
func (m *MockWatcher) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// SetCancelError makes CancelWatch return an error.
func (m *MockWatcher) SetCancelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErr = err
}

// SetStatus overwrites the recorded state of a watch.
func (m *MockWatcher) SetStatus(status *WatchStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches[status.WorkflowID] = status
}

// Input returns the input a watch was started with.
func (m *MockWatcher) Input(c cluster.Cluster, signature string) (WatchInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.inputs[WatchID(c, signature)]
	return in, ok
}

// WatchCount returns the number of recorded watches.
func (m *MockWatcher) WatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}
