// Package schedule wraps a cron expression into a single recurring tick,
// the loop that wakes the Driver once a day (spec §4.6's default of
// "0 20 * * *").
package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ParseExpr validates a 5-field cron expression and returns its parsed
// schedule, used both by config validation and by Ticker.
func ParseExpr(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: parse cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// TickFunc is invoked once per cron firing.
type TickFunc func(ctx context.Context, firedAt time.Time) error

// Ticker fires TickFunc on a single cron schedule, skipping a firing if the
// previous one is still running rather than overlapping it.
type Ticker struct {
	sched   cron.Schedule
	fn      TickFunc
	logger  *zap.Logger
	running atomic.Bool

	mu      sync.Mutex
	nextRun time.Time
	lastRun time.Time

	stopCh chan struct{}
	nowFn  func() time.Time
}

// NewTicker builds a Ticker for the given cron expression.
func NewTicker(expr string, fn TickFunc, logger *zap.Logger) (*Ticker, error) {
	sched, err := ParseExpr(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now().UTC()
	return &Ticker{
		sched:   sched,
		fn:      fn,
		logger:  logger,
		nextRun: sched.Next(now),
		stopCh:  make(chan struct{}),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start begins the minute-resolution poll loop. The caller's context
// cancellation stops it; Stop also stops it idempotently.
func (t *Ticker) Start(ctx context.Context) {
	poll := time.NewTicker(time.Minute)
	go func() {
		defer poll.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stopCh:
				return
			case <-poll.C:
				t.fireIfDue(ctx)
			}
		}
	}()
}

// Stop halts the poll loop. Calls after the first have no effect.
func (t *Ticker) Stop() {
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
}

// NextRun reports the next scheduled firing time.
func (t *Ticker) NextRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextRun
}

func (t *Ticker) fireIfDue(ctx context.Context) {
	now := t.nowFn()

	t.mu.Lock()
	due := !now.Before(t.nextRun)
	t.mu.Unlock()
	if !due {
		return
	}

	if !t.running.CompareAndSwap(false, true) {
		t.logger.Sugar().Warnw("skipping cron firing, previous tick still running")
		return
	}

	go func() {
		defer t.running.Store(false)
		if err := t.fn(ctx, now); err != nil {
			t.logger.Sugar().Errorw("tick failed", "error", err)
		}
		t.mu.Lock()
		t.lastRun = now
		t.nextRun = t.sched.Next(now)
		t.mu.Unlock()
	}()
}
