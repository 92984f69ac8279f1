package core

import (
	"context"
	"errors"
	"time"
)

// StartReconciler launches a background goroutine that periodically
// compares the vector and graph stores and logs when they diverge.
//
// The reconciler only reports; it never repairs. Write-path failures are
// already logged individually, this catches drift that accumulated anyway.
// Calling StartReconciler while one is running is a no-op.
func (s *Service) StartReconciler(interval time.Duration) {
	if s.reconcileStop != nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s.reconcileStop = make(chan struct{})
	go s.reconcileLoop(interval, s.reconcileStop)
}

// StopReconciler stops the background reconciler if one is running.
func (s *Service) StopReconciler() {
	if s.reconcileStop == nil {
		return
	}
	close(s.reconcileStop)
	s.reconcileStop = nil
}

func (s *Service) reconcileLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.reconcileOnce()
		}
	}
}

func (s *Service) reconcileOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.CheckConsistency(ctx); err != nil {
		if errors.Is(err, ErrInconsistentStores) {
			s.logger.Warn("stores have diverged", "error", err)
		} else {
			s.logger.Warn("consistency check failed", "error", err)
		}
	}
}
