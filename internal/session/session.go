// Package session groups the state that lives exactly as long as one remote job.
package session

import (
	"context"
	"log/slog"
	"sync"

	"character-card-wizard/internal/poller"
	"character-card-wizard/internal/reconcile"
)

// Session holds the job id, its poll loop and its reconciled entries. Reset
// clears all three together and bumps the epoch so late responses can be
// recognised and dropped.
type Session struct {
	mu        sync.Mutex
	processID string
	epoch     uint64

	poller     *poller.Poller
	reconciler *reconcile.Reconciler
}

// New builds an empty session around a poller.
func New(p *poller.Poller, logger *slog.Logger) *Session {
	return &Session{poller: p, reconciler: reconcile.New(logger)}
}

// Begin records the process id of a freshly submitted job and returns the epoch it belongs to.
func (s *Session) Begin(processID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processID = processID
	return s.epoch
}

// ProcessID returns the current job id, empty when no job is tracked.
func (s *Session) ProcessID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processID
}

// Epoch returns the current epoch.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Current reports whether epoch is still the live one.
func (s *Session) Current(epoch uint64) bool {
	return s.Epoch() == epoch
}

// Reconciler returns the entry store of the current job.
func (s *Session) Reconciler() *reconcile.Reconciler {
	return s.reconciler
}

// Poll starts (or restarts) the loop for the current job. It is a no-op without a job.
func (s *Session) Poll(ctx context.Context, handle poller.Handler, onStall func()) bool {
	id := s.ProcessID()
	if id == "" {
		return false
	}
	s.poller.Start(ctx, id, handle, onStall)
	return true
}

// StopPolling cancels the loop but keeps the job and its entries.
func (s *Session) StopPolling() {
	s.poller.Stop()
}

// Polling reports whether a loop is live.
func (s *Session) Polling() bool {
	return s.poller.Active()
}

// Reset stops the loop, forgets the job and its entries, and starts a new epoch.
func (s *Session) Reset() {
	s.poller.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processID = ""
	s.epoch++
	s.reconciler.Reset()
}
