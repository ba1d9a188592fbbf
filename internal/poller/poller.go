// Package poller drives the fixed-interval status loop for one job at a time.
package poller

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"character-card-wizard/internal/models"
	"character-card-wizard/internal/telemetry"
)

// Fetcher reads the current status of a job.
type Fetcher interface {
	Status(ctx context.Context, processID string) (models.StatusSnapshot, error)
}

// Handler receives each snapshot of the current loop. Returning true stops the loop.
type Handler func(snap models.StatusSnapshot) (stop bool)

// Options tune the loop.
type Options struct {
	Interval time.Duration
	// MaxDuration bounds how long one loop may run before it reports a stall. Zero means forever.
	MaxDuration    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Poller owns at most one live loop. Starting a loop always cancels the previous one.
type Poller struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a poller. A zero interval falls back to one second.
func New(fetcher Fetcher, opts Options, logger *slog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = opts.Interval
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{fetcher: fetcher, opts: opts, logger: logger}
}

// Start cancels any running loop and begins polling processID. onStall runs
// once if the loop exceeds MaxDuration without the handler stopping it.
func (p *Poller) Start(ctx context.Context, processID string, handle Handler, onStall func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.gen++
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	telemetry.ActivePollers.Inc()

	l := &loop{
		poller:    p,
		gen:       p.gen,
		processID: processID,
		handle:    handle,
		onStall:   onStall,
		done:      p.done,
	}
	go l.run(loopCtx)
}

// Stop cancels the running loop, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Active reports whether a loop is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Wait blocks until the current loop goroutine has exited.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	telemetry.ActivePollers.Dec()
}

// stopGen stops the loop only if gen is still the current one.
func (p *Poller) stopGen(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen {
		p.stopLocked()
	}
}

func (p *Poller) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen == gen && p.cancel != nil
}

type loop struct {
	poller    *Poller
	gen       uint64
	processID string
	handle    Handler
	onStall   func()
	done      chan struct{}

	failures atomic.Int64
	// deliver serializes handler calls so overlapping responses apply one at a time.
	deliver sync.Mutex
}

func (l *loop) run(ctx context.Context) {
	defer close(l.done)
	p := l.poller
	defer p.stopGen(l.gen)

	var deadline <-chan time.Time
	if p.opts.MaxDuration > 0 {
		stallTimer := time.NewTimer(p.opts.MaxDuration)
		defer stallTimer.Stop()
		deadline = stallTimer.C
	}

	timer := time.NewTimer(p.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			if !p.current(l.gen) {
				return
			}
			p.logger.Warn("poll loop stalled", "process_id", l.processID, "max_duration", p.opts.MaxDuration)
			p.stopGen(l.gen)
			if l.onStall != nil {
				l.onStall()
			}
			return
		case <-timer.C:
			// Fire without waiting for the previous request; slow responses may overlap.
			go l.poll(ctx)
			timer.Reset(l.nextDelay())
		}
	}
}

func (l *loop) poll(ctx context.Context) {
	p := l.poller
	telemetry.PollsIssued.Inc()
	snap, err := p.fetcher.Status(ctx, l.processID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		n := l.failures.Add(1)
		telemetry.PollErrors.Inc()
		p.logger.Warn("status poll failed", "process_id", l.processID, "consecutive_failures", n, "err", err)
		return
	}
	l.failures.Store(0)

	l.deliver.Lock()
	defer l.deliver.Unlock()
	if ctx.Err() != nil || !p.current(l.gen) {
		return
	}
	telemetry.SnapshotsApplied.Inc()
	if l.handle(snap) {
		p.stopGen(l.gen)
	}
}

func (l *loop) nextDelay() time.Duration {
	p := l.poller
	failures := int(l.failures.Load())
	if failures == 0 {
		return p.opts.Interval
	}
	wait := backoffWithJitter(p.opts.BackoffInitial, p.opts.BackoffMax, failures)
	if wait < p.opts.Interval {
		return p.opts.Interval
	}
	return wait
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max || exp > float64(math.MaxInt64) {
		wait = max
	}
	if wait < 2 {
		return wait
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
