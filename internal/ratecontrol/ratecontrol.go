package ratecontrol

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit is a requests-per-minute budget for one provider.
type RateLimit struct {
	RPM   float64
	Burst int
}

// Limit returns the token refill rate, or rate.Inf for an unlimited budget.
func (l RateLimit) Limit() rate.Limit {
	if l.RPM <= 0 {
		return rate.Inf
	}
	return rate.Limit(l.RPM / 60.0)
}

var builtInProviderLimits = map[string]RateLimit{
	"tavily":     {RPM: 300, Burst: 5},
	"duckduckgo": {RPM: 60, Burst: 1},
	"serpapi":    {RPM: 120, Burst: 2},
	"anthropic":  {RPM: 20, Burst: 2},
	"gemini":     {RPM: 40, Burst: 4},
	"http":       {RPM: 60, Burst: 4},
}

// Limiters hands out one token-bucket limiter per provider.
type Limiters struct {
	mu        sync.Mutex
	overrides map[string]RateLimit
	limiters  map[string]*rate.Limiter
}

// New builds a limiter set. perSecond overrides built-in limits with a
// requests-per-second value keyed by provider name; 0 disables limiting.
func New(perSecond map[string]float64) *Limiters {
	l := &Limiters{
		overrides: make(map[string]RateLimit, len(perSecond)),
		limiters:  make(map[string]*rate.Limiter),
	}
	for name, rps := range perSecond {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		l.overrides[normalize(name)] = RateLimit{RPM: rps * 60, Burst: burst}
	}
	return l
}

// LimitForProvider returns the effective budget for provider.
func (l *Limiters) LimitForProvider(provider string) RateLimit {
	key := normalize(provider)
	if o, ok := l.overrides[key]; ok {
		return o
	}
	if b, ok := builtInProviderLimits[key]; ok {
		return b
	}
	return RateLimit{}
}

// Limiter returns the shared limiter for provider, creating it on first use.
func (l *Limiters) Limiter(provider string) *rate.Limiter {
	key := normalize(provider)
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	budget := l.LimitForProvider(key)
	burst := budget.Burst
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(budget.Limit(), burst)
	l.limiters[key] = lim
	return lim
}

// Wait blocks until provider may issue another request or ctx is done. A nil
// receiver never blocks.
func (l *Limiters) Wait(ctx context.Context, provider string) error {
	if l == nil {
		return ctx.Err()
	}
	return l.Limiter(provider).Wait(ctx)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
