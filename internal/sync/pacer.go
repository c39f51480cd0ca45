package sync

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Step names a point in a batch sync where the remote is given a rest.
type Step int

const (
	StepAfterSubscriptions Step = iota
	StepBetweenSubscriptions
)

// Pacer spaces out remote calls. Pause returns an error when the context
// ends first, which cuts the batch short.
type Pacer interface {
	Pause(ctx context.Context, step Step) error
}

// LimiterPacer keeps one limiter per step, so each step waits at least its
// gap since the last time it was passed.
type LimiterPacer struct {
	limiters map[Step]*rate.Limiter
}

func NewLimiterPacer(afterSubscriptions, betweenSubscriptions time.Duration) *LimiterPacer {
	return &LimiterPacer{
		limiters: map[Step]*rate.Limiter{
			StepAfterSubscriptions:   newLimiter(afterSubscriptions),
			StepBetweenSubscriptions: newLimiter(betweenSubscriptions),
		},
	}
}

func newLimiter(gap time.Duration) *rate.Limiter {
	if gap <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	l := rate.NewLimiter(rate.Every(gap), 1)
	// Spend the initial token so the first pause waits too.
	l.Allow()
	return l
}

func (p *LimiterPacer) Pause(ctx context.Context, step Step) error {
	l, ok := p.limiters[step]
	if !ok {
		return ctx.Err()
	}
	return l.Wait(ctx)
}
