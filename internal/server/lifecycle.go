// Package server provides process lifecycle management: it runs the
// simulator's services side by side and shuts them all down on a signal, a
// service failure, or once every primary service has finished.
package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a component that runs until its work is done or ctx is cancelled.
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function into the Service interface.
type ServiceFunc func(ctx context.Context) error

// Run calls f.
func (f ServiceFunc) Run(ctx context.Context) error { return f(ctx) }

// Lifecycle manages a set of named services.
//
// Primary services do finite work; when every primary has returned the
// lifecycle cancels the rest. Background services run until cancelled.
type Lifecycle struct {
	logger   *zap.Logger
	mu       sync.Mutex
	services []namedService
}

type namedService struct {
	name    string
	service Service
	primary bool
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	if logger == nil {
		panic("server.NewLifecycle: logger must not be nil")
	}
	return &Lifecycle{logger: logger}
}

// Add registers a background service.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.add(name, svc, false)
}

// AddPrimary registers a service whose completion ends the lifecycle.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) AddPrimary(name string, svc Service) {
	l.add(name, svc, true)
}

func (l *Lifecycle) add(name string, svc Service, primary bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc, primary: primary})
}

// Run starts every service and blocks until SIGINT or SIGTERM, cancellation
// of ctx, the first service failure, or the return of the last primary
// service. All services share one context, which is cancelled on the way out.
//
// Postcondition: every service has returned. The result joins the failures
// of all services; context cancellation is not a failure.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	services := slices.Clone(l.services)
	l.mu.Unlock()

	var (
		wg        sync.WaitGroup
		primaries sync.WaitGroup
		errMu     sync.Mutex
		errs      []error
	)
	hasPrimary := false
	for _, ns := range services {
		ns := ns
		wg.Add(1)
		if ns.primary {
			hasPrimary = true
			primaries.Add(1)
		}
		go func() {
			defer wg.Done()
			if ns.primary {
				defer primaries.Done()
			}
			l.logger.Info("starting service",
				zap.String("service", ns.name),
				zap.Bool("primary", ns.primary),
			)
			svcStart := time.Now()
			err := ns.service.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("service %s: %w", ns.name, err))
				errMu.Unlock()
				cancel()
				return
			}
			l.logger.Info("service stopped",
				zap.String("service", ns.name),
				zap.Duration("uptime", time.Since(svcStart)),
			)
		}()
	}
	if hasPrimary {
		go func() {
			primaries.Wait()
			l.logger.Info("primary services finished")
			cancel()
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	<-ctx.Done()
	l.logger.Info("shutting down")
	wg.Wait()

	l.logger.Info("shutdown complete",
		zap.Duration("total_uptime", time.Since(start)),
	)
	errMu.Lock()
	defer errMu.Unlock()
	return errors.Join(errs...)
}
