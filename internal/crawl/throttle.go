package crawl

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleConfig holds the request-rate knobs.
type ThrottleConfig struct {
	// MaxConcurrent caps simultaneously in-flight fetches.
	MaxConcurrent int
	// DelayMin/DelayMax bound the randomized per-request delay, drawn
	// uniformly before each fetch is admitted.
	DelayMin time.Duration
	DelayMax time.Duration
	// GlobalRPS optionally caps the overall request rate. Zero disables it.
	GlobalRPS float64
}

// Throttle enforces admission control for fetches: a hard concurrency
// ceiling, a randomized inter-request delay, and an optional global rate
// cap. The delay is applied per worker, not globally serialized, so the
// ceiling and delay compose to bound total request rate. Safe for concurrent
// use.
type Throttle struct {
	slots    chan struct{}
	delayMin time.Duration
	delayMax time.Duration
	limiter  *rate.Limiter
}

// NewThrottle validates the config and builds a Throttle.
func NewThrottle(cfg ThrottleConfig) (*Throttle, error) {
	if cfg.MaxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent must be >= 1")
	}
	if cfg.DelayMin < 0 || cfg.DelayMax < cfg.DelayMin {
		return nil, fmt.Errorf("delay range (%s, %s) is invalid", cfg.DelayMin, cfg.DelayMax)
	}
	var limiter *rate.Limiter
	if cfg.GlobalRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), 1)
	}
	return &Throttle{
		slots:    make(chan struct{}, cfg.MaxConcurrent),
		delayMin: cfg.DelayMin,
		delayMax: cfg.DelayMax,
		limiter:  limiter,
	}, nil
}

// Admit blocks until the caller may start a fetch and returns a release
// function that must be called once the fetch finishes. The error is non-nil
// only when ctx is done, in which case no slot is held.
func (t *Throttle) Admit(ctx context.Context) (func(), error) {
	select {
	case t.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("throttle slot wait canceled: %w", ctx.Err())
	}

	release := func() { <-t.slots }

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			release()
			return nil, fmt.Errorf("throttle rate wait: %w", err)
		}
	}

	if err := t.pause(ctx, t.randomDelay()); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// InFlight returns the number of currently held slots.
func (t *Throttle) InFlight() int {
	return len(t.slots)
}

func (t *Throttle) randomDelay() time.Duration {
	if t.delayMax <= t.delayMin {
		return t.delayMin
	}
	return t.delayMin + time.Duration(rand.Int64N(int64(t.delayMax-t.delayMin)))
}

func (t *Throttle) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("throttle delay canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
