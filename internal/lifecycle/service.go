// Package lifecycle provides the start/stop scaffolding long-lived
// background services share, adapted from common/util.StatefulService:
// a service owns a cancellable context and a background goroutine, and
// Stop blocks until that goroutine has actually exited.
package lifecycle

import (
	"context"
	"sync"

	"github.com/buildbeaver/workflow-engine/internal/logger"
)

// Service runs fn in a background goroutine until Stop cancels its context.
type Service struct {
	mu        sync.Mutex
	started   bool
	ctx       context.Context
	ctxCancel context.CancelFunc
	doneC     chan struct{}
	fn        func(ctx context.Context)
	log       logger.Log
}

func NewService(ctx context.Context, log logger.Log, fn func(ctx context.Context)) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:       ctx,
		ctxCancel: cancel,
		doneC:     make(chan struct{}),
		fn:        fn,
		log:       log,
	}
}

// Start runs fn in a background goroutine. Calling Start twice logs an
// error and does nothing, rather than panicking, since this core must
// never terminate the process on an internal invariant violation (spec §7d).
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Errorf("service already started, ignoring duplicate Start call")
		return
	}
	s.started = true
	s.log.Info("starting")
	go func() {
		defer close(s.doneC)
		s.fn(s.ctx)
		s.log.Info("stopped")
	}()
}

// Stop cancels the service's context and blocks until its goroutine exits.
// Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.log.Info("stopping")
	s.ctxCancel()
	<-s.doneC
}

// Done reports when the service's background goroutine has exited.
func (s *Service) Done() <-chan struct{} {
	return s.doneC
}
