package server

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockService tracks start/stop calls for lifecycle assertions.
type mockService struct {
	started  atomic.Bool
	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newMockService() *mockService {
	return &mockService{stopCh: make(chan struct{})}
}

func (m *mockService) Start() error {
	m.started.Store(true)
	<-m.stopCh
	return nil
}

func (m *mockService) Stop() {
	m.stopped.Store(true)
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func TestLifecycleRunStopsOnContextCancel(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	svc := newMockService()
	lc.Add("mock", svc)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- lc.Run(ctx)
	}()

	// Wait for the service to start.
	require.Eventually(t, svc.started.Load, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	assert.True(t, svc.stopped.Load())
}

func TestLifecycleStopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())

	var mu sync.Mutex
	var order []string
	stopped := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	first := newMockService()
	second := newMockService()
	lc.Add("first", &FuncService{
		StartFn: first.Start,
		StopFn:  func() { stopped("first"); first.Stop() },
	})
	lc.Add("second", &FuncService{
		StartFn: second.Start,
		StopFn:  func() { stopped("second"); second.Stop() },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lc.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return first.started.Load() && second.started.Load()
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"second", "first"}, order)
}

func TestLifecycleShutsDownOnServiceError(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())

	healthy := newMockService()
	lc.Add("healthy", healthy)
	lc.Add("failing", &FuncService{
		StartFn: func() error { return assert.AnError },
		StopFn:  func() {},
	})

	done := make(chan error, 1)
	go func() {
		done <- lc.Run(context.Background())
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after service failure")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestLifecycleAbandonsStuckService(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	lc.stopTimeout = 20 * time.Millisecond

	block := make(chan struct{})
	lc.Add("stuck", &FuncService{
		StartFn: func() error { <-block; return nil },
		StopFn:  func() { <-block }, // never returns
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lc.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run hung on a service whose Stop never returns")
	}
}

func TestFuncService(t *testing.T) {
	var started, stopped bool
	svc := &FuncService{
		StartFn: func() error { started = true; return nil },
		StopFn:  func() { stopped = true },
	}

	require.NoError(t, svc.Start())
	svc.Stop()
	assert.True(t, started)
	assert.True(t, stopped)
}
