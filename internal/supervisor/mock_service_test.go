package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// mockService implements suture.Service with controllable behavior.
type mockService struct {
	name       string
	startCount atomic.Int32
	stopCount  atomic.Int32
	failCount  atomic.Int32
	maxFails   int32
	onStop     func(name string)
	mu         sync.Mutex
}

func newMockService(name string) *mockService {
	return &mockService{name: name}
}

func (m *mockService) Serve(ctx context.Context) error {
	m.startCount.Add(1)
	defer m.stopCount.Add(1)

	m.mu.Lock()
	maxFails := m.maxFails
	onStop := m.onStop
	m.mu.Unlock()

	if maxFails > 0 && m.failCount.Add(1) <= maxFails {
		return errors.New("simulated failure")
	}

	<-ctx.Done()
	if onStop != nil {
		onStop(m.name)
	}
	return ctx.Err()
}

// setFailCount makes the first n calls to Serve fail.
func (m *mockService) setFailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxFails = int32(n)
}

func (m *mockService) setOnStop(fn func(name string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStop = fn
}

func (m *mockService) String() string {
	return m.name
}

// stopRecorder collects service names in the order they stopped.
type stopRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *stopRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *stopRecorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// mockLifecycle is a test double for Lifecycle.
type mockLifecycle struct {
	startErr   error
	stopErr    error
	startCount atomic.Int32
	stopCount  atomic.Int32
	started    chan struct{}
}

func newMockLifecycle() *mockLifecycle {
	return &mockLifecycle{started: make(chan struct{}, 8)}
}

func (m *mockLifecycle) Start(context.Context) error {
	m.startCount.Add(1)
	if m.startErr != nil {
		return m.startErr
	}
	m.started <- struct{}{}
	return nil
}

func (m *mockLifecycle) Stop(context.Context) error {
	m.stopCount.Add(1)
	return m.stopErr
}

// mockRunner is a test double for Runner.
type mockRunner struct {
	runs atomic.Int32
}

func (m *mockRunner) Run(ctx context.Context) error {
	m.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}
