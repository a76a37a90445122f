package websearch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/config"
	ometrics "github.com/Kocoro-lab/Shannon/go/curriculum/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/ratecontrol"
)

// minAccepted is the result count above which a non-final provider is trusted.
const minAccepted = 2

// HistoryEntry records one toolchain search.
type HistoryEntry struct {
	Query       string    `json:"query"`
	Provider    string    `json:"provider"`
	ResultCount int       `json:"result_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// QueryStats summarizes one query of a batch.
type QueryStats struct {
	Count    int    `json:"count"`
	Provider string `json:"provider"`
}

// Stats aggregates the search history.
type Stats struct {
	TotalSearches int            `json:"total_searches"`
	ProvidersUsed map[string]int `json:"providers_used"`
	LastSearch    *HistoryEntry  `json:"last_search,omitempty"`
}

// Toolchain tries providers in order until one returns enough results.
type Toolchain struct {
	providers []Provider
	logger    *zap.Logger

	mu      sync.Mutex
	history []HistoryEntry
}

// NewToolchain builds a chain; the first provider is the primary and the
// last is accepted unconditionally.
func NewToolchain(logger *zap.Logger, providers ...Provider) *Toolchain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Toolchain{providers: providers, logger: logger}
}

// NewDefaultToolchain wires Tavily, DuckDuckGo and SerpAPI from configuration.
func NewDefaultToolchain(cfg config.SearchConfig, limiters *ratecontrol.Limiters, logger *zap.Logger) *Toolchain {
	opts := ProviderOptions{
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		Limiters: limiters,
		Logger:   logger,
	}
	return NewToolchain(logger,
		NewTavily(cfg.TavilyAPIKey, cfg.TavilyDepth, opts),
		NewDuckDuckGo(opts),
		NewSerpAPI(cfg.SerpAPIKey, opts),
	)
}

// Primary returns the name of the first provider.
func (t *Toolchain) Primary() string {
	if len(t.providers) == 0 {
		return ProviderUnknown
	}
	return t.providers[0].Name()
}

// Search returns results and the name of the provider that served them.
func (t *Toolchain) Search(ctx context.Context, query string, max int) ([]models.SearchResult, string) {
	var (
		results []models.SearchResult
		used    = ProviderUnknown
	)
	for i, p := range t.providers {
		last := i == len(t.providers)-1
		ok, res := p.Search(ctx, query, max)
		ometrics.RecordSearchProviderMetrics(p.Name(), ok, len(res))
		if last || (ok && len(res) > minAccepted) {
			results, used = res, p.Name()
			break
		}
		t.logger.Info("Search provider insufficient, falling back",
			zap.String("provider", p.Name()),
			zap.Bool("ok", ok),
			zap.Int("results", len(res)))
	}
	if used != t.Primary() && used != ProviderUnknown {
		ometrics.SearchFallbacks.WithLabelValues(used).Inc()
	}

	t.mu.Lock()
	t.history = append(t.history, HistoryEntry{
		Query:       query,
		Provider:    used,
		ResultCount: len(results),
		Timestamp:   time.Now(),
	})
	t.mu.Unlock()

	t.logger.Info("Search complete",
		zap.String("query", query),
		zap.String("provider", used),
		zap.Int("results", len(results)))
	return results, used
}

// BatchSearch runs each query in order and concatenates the results.
func (t *Toolchain) BatchSearch(ctx context.Context, queries []string, maxPerQuery int) ([]models.SearchResult, map[string]QueryStats) {
	var all []models.SearchResult
	stats := make(map[string]QueryStats, len(queries))
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		res, provider := t.Search(ctx, q, maxPerQuery)
		all = append(all, res...)
		stats[q] = QueryStats{Count: len(res), Provider: provider}
	}
	t.logger.Info("Batch search complete",
		zap.Int("queries", len(queries)),
		zap.Int("results", len(all)))
	return all, stats
}

// Deduplicate drops repeated URLs, keeping first-seen order.
func Deduplicate(results []models.SearchResult) []models.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		key := urlKey(r.URL)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// History returns a copy of every recorded search.
func (t *Toolchain) History() []HistoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]HistoryEntry, len(t.history))
	copy(out, t.history)
	return out
}

// Stats summarizes the history.
func (t *Toolchain) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{TotalSearches: len(t.history), ProvidersUsed: map[string]int{}}
	for _, h := range t.history {
		s.ProvidersUsed[h.Provider]++
	}
	if n := len(t.history); n > 0 {
		last := t.history[n-1]
		s.LastSearch = &last
	}
	return s
}
