// Package server coordinates startup and shutdown of the long-running
// pieces of the lobby process.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a long-running component of the process. Start blocks until
// the service stops or fails; Stop asks it to wind down.
type Service interface {
	Start() error
	Stop()
}

// FuncService adapts a start/stop function pair into a Service, for
// components like the acceptor that expose methods rather than the
// interface.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls the wrapped start function.
func (s *FuncService) Start() error { return s.StartFn() }

// Stop calls the wrapped stop function.
func (s *FuncService) Stop() { s.StopFn() }

// defaultStopTimeout bounds how long one service may take to stop before
// shutdown abandons it and moves on.
const defaultStopTimeout = 10 * time.Second

// Lifecycle starts registered services in registration order and stops
// them in reverse order on SIGINT, SIGTERM, context cancellation, or the
// first service failure.
//
// All services must be registered before Run; registration is not safe
// for concurrent use.
type Lifecycle struct {
	logger      *zap.Logger
	names       []string
	services    []Service
	stopTimeout time.Duration
}

// NewLifecycle creates an empty Lifecycle.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:      logger,
		stopTimeout: defaultStopTimeout,
	}
}

// Add registers a named service. Registration order is start order.
func (l *Lifecycle) Add(name string, svc Service) {
	l.names = append(l.names, name)
	l.services = append(l.services, svc)
}

// Run starts every registered service and blocks until a termination
// signal arrives, the context is cancelled, or a service fails. It then
// stops all services in reverse registration order.
//
// Postcondition: Stop has been requested of every service when Run
// returns; a service that exceeds the stop timeout is abandoned with a
// warning rather than blocking shutdown.
func (l *Lifecycle) Run(ctx context.Context) error {
	started := time.Now()

	failed := make(chan error, len(l.services))
	for i, svc := range l.services {
		name := l.names[i]
		svc := svc
		go func() {
			l.logger.Info("service starting", zap.String("service", name))
			if err := svc.Start(); err != nil {
				failed <- fmt.Errorf("service %s: %w", name, err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		l.logger.Info("shutting down on signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		l.logger.Info("shutting down, context cancelled")
	case err := <-failed:
		l.logger.Error("shutting down after service failure", zap.Error(err))
	}

	l.stopAll()

	l.logger.Info("shutdown complete", zap.Duration("uptime", time.Since(started)))
	return nil
}

// stopAll stops services in reverse registration order, bounding each
// stop by the stop timeout.
func (l *Lifecycle) stopAll() {
	for i := len(l.services) - 1; i >= 0; i-- {
		name := l.names[i]

		stopped := make(chan struct{})
		go func(svc Service) {
			svc.Stop()
			close(stopped)
		}(l.services[i])

		select {
		case <-stopped:
			l.logger.Info("service stopped", zap.String("service", name))
		case <-time.After(l.stopTimeout):
			l.logger.Warn("service did not stop in time, abandoning",
				zap.String("service", name),
				zap.Duration("timeout", l.stopTimeout),
			)
		}
	}
}
