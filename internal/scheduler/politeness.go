package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// politeness spaces the fetches of each domain by a minimum delay.
type politeness struct {
	every time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// newPoliteness returns nil when delay is not positive; a nil politeness
// never waits.
func newPoliteness(delay time.Duration) *politeness {
	if delay <= 0 {
		return nil
	}
	return &politeness{
		every:    delay,
		limiters: make(map[string]*rate.Limiter),
	}
}

// wait blocks until domain may be fetched again. The first fetch of a
// domain never waits.
func (p *politeness) wait(ctx context.Context, domain string) error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	l, ok := p.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.every), 1)
		p.limiters[domain] = l
	}
	p.mu.Unlock()

	return l.Wait(ctx)
}
