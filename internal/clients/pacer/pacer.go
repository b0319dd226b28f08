// Package pacer provides the request pacing shared by every outbound client.
package pacer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/fnoscreen/internal/common"
)

// Pacer enforces a minimum gap between any two external calls, across all callers.
// It is a token bucket with burst 1 whose reservations are taken against an
// injectable clock, so tests can observe spacing without sleeping.
type Pacer struct {
	limiter  *rate.Limiter
	clock    common.Clock
	interval time.Duration
}

// New creates a Pacer allowing one call per interval. A zero interval disables pacing.
func New(interval time.Duration, clock common.Clock) *Pacer {
	if clock == nil {
		clock = common.NewRealClock()
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		clock:    clock,
		interval: interval,
	}
}

// Interval returns the configured minimum gap.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until the caller may make one external call or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("pacer: reservation refused")
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	select {
	case <-p.clock.After(delay):
		return nil
	case <-ctx.Done():
		r.CancelAt(p.clock.Now())
		return ctx.Err()
	}
}
