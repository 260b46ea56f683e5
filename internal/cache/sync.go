package cache

import (
	"context"
	"time"

	"github.com/danielolaszy/tether/internal/logging"
)

// SyncFunc is the caller-supplied synchronization routine invoked on every
// periodic tick.
type SyncFunc func(ctx context.Context) error

// StartPeriodicSync schedules fn to run every SyncInterval and records each
// outcome into the sync state. Starting while already running is a no-op.
func (s *Store) StartPeriodicSync(fn SyncFunc) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if s.syncCancel != nil {
		return
	}

	cancel := make(chan struct{})
	done := make(chan struct{})
	s.syncCancel = cancel
	s.syncDone = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.cfg.SyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				s.runSync(fn, cancel)
			}
		}
	}()
}

// runSync invokes the routine once, cancelling it if the scheduler stops
// mid-run, and stamps the outcome.
func (s *Store) runSync(fn SyncFunc, cancel chan struct{}) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	go func() {
		select {
		case <-cancel:
			cancelCtx()
		case <-ctx.Done():
		}
	}()

	status := "ok"
	if err := fn(ctx); err != nil {
		status = "error: " + err.Error()
		logging.Warn("periodic sync failed", "error", err)
	} else {
		logging.Debug("periodic sync completed")
	}

	if err := s.recordSyncOutcome(s.now(), status); err != nil {
		logging.Warn("recording sync outcome failed", "error", err)
	}
}

// StopPeriodicSync cancels the scheduled task and waits for any in-flight
// run to finish. It is idempotent and must be called before Close so no
// dangling task touches a closed connection.
func (s *Store) StopPeriodicSync() {
	s.syncMu.Lock()
	cancel, done := s.syncCancel, s.syncDone
	s.syncCancel, s.syncDone = nil, nil
	s.syncMu.Unlock()

	if cancel == nil {
		return
	}
	close(cancel)
	<-done
}
