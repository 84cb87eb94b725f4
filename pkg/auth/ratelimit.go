package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rhuss/relais/pkg/api"
)

// RateLimiter decides whether an authenticated caller may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// window counts requests since its start instant.
type window struct {
	start time.Time
	n     int
}

// InProcessLimiter enforces a per-subject request budget over a fixed
// one-minute window held in memory. State is local to the process;
// running several bridge replicas multiplies the effective budget.
type InProcessLimiter struct {
	rpm int
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewInProcessLimiter creates a limiter allowing rpm requests per
// minute per subject. rpm <= 0 disables the limiter.
func NewInProcessLimiter(rpm int) *InProcessLimiter {
	return &InProcessLimiter{
		rpm:     rpm,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow counts the request against the subject's current window. A
// window older than a minute is discarded and restarted, so a burst
// that exhausted the budget clears after at most one minute of quiet.
func (l *InProcessLimiter) Allow(_ context.Context, id *Identity) error {
	if l.rpm <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[id.Subject]
	if w == nil || now.Sub(w.start) >= time.Minute {
		l.windows[id.Subject] = &window{start: now, n: 1}
		return nil
	}

	w.n++
	if w.n > l.rpm {
		return api.NewRateLimitedError("request budget exceeded for " + id.Subject)
	}
	return nil
}
