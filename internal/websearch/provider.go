// Package websearch gathers external curriculum material through a chain of
// search providers and condenses it into findings.
package websearch

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/ratecontrol"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/util"
)

// Provider names.
const (
	ProviderTavily     = "tavily"
	ProviderDuckDuckGo = "duckduckgo"
	ProviderSerpAPI    = "serpapi"
	ProviderUnknown    = "unknown"
)

const snippetLimit = 200

// Provider is one search backend. Unavailability and failures are reported as
// (false, nil); providers never return errors to the chain.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, max int) (bool, []models.SearchResult)
}

// ProviderOptions are shared by the HTTP-backed providers.
type ProviderOptions struct {
	Endpoint string
	Timeout  time.Duration
	Limiters *ratecontrol.Limiters
	Logger   *zap.Logger
}

func (o ProviderOptions) withDefaults(endpoint string) ProviderOptions {
	if o.Endpoint == "" {
		o.Endpoint = endpoint
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func newWrapper(name string, o ProviderOptions) *circuitbreaker.HTTPWrapper {
	return circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: o.Timeout}, name, "websearch", o.Logger)
}

// backoff sleeps for d unless ctx ends first, then returns the next delay
// (doubled, capped at 30s).
func backoff(ctx context.Context, d time.Duration) (time.Duration, error) {
	select {
	case <-ctx.Done():
		return d, ctx.Err()
	case <-time.After(d):
	}
	if d < 30*time.Second {
		d *= 2
	}
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d, nil
}

func snippet(s string) string { return util.Prefix(s, snippetLimit) }

func limitResults(in []models.SearchResult, max int) []models.SearchResult {
	if max > 0 && len(in) > max {
		return in[:max]
	}
	return in
}
