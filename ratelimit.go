package clicker

import "golang.org/x/time/rate"

const (
	defaultActionRate  float64 = 10.0
	defaultActionBurst int     = 20
)

// RateLimitConfig configures a token bucket for actions. Zero values fall
// back to the defaults; Rate -1 disables limiting.
type RateLimitConfig struct {
	Rate  float64
	Burst int
}

// ActionOption configures a single action registered with Context.Action.
type ActionOption func(*actionEntry)

type actionEntry struct {
	fn      func()
	limiter *rate.Limiter // nil: only the page limiter applies
}

// WithRateLimit gives the action its own bucket on top of the page one.
func WithRateLimit(r float64, burst int) ActionOption {
	return func(e *actionEntry) {
		e.limiter = newLimiter(RateLimitConfig{Rate: r, Burst: burst}, defaultActionRate, defaultActionBurst)
	}
}

func newLimiter(cfg RateLimitConfig, defaultRate float64, defaultBurst int) *rate.Limiter {
	r, b := cfg.Rate, cfg.Burst
	if r == -1 {
		return nil
	}
	if r == 0 {
		r = defaultRate
	}
	if b == 0 {
		b = defaultBurst
	}
	return rate.NewLimiter(rate.Limit(r), b)
}
