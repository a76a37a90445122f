package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/tracing"
)

const tavilyDefaultScore = 0.5

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey   string
	depth    string
	opts     ProviderOptions
	httpw    *circuitbreaker.HTTPWrapper
	attempts int
	delay    time.Duration
}

// NewTavily constructs the primary provider. An empty key makes it unavailable.
func NewTavily(apiKey, depth string, opts ProviderOptions) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	o := opts.withDefaults("https://api.tavily.com/search")
	return &Tavily{apiKey: apiKey, depth: depth, opts: o, httpw: newWrapper("tavily", o), attempts: 4, delay: time.Second}
}

func (t *Tavily) Name() string { return ProviderTavily }

func (t *Tavily) Search(ctx context.Context, query string, max int) (bool, []models.SearchResult) {
	log := t.opts.Logger
	if strings.TrimSpace(t.apiKey) == "" {
		log.Debug("Tavily skipped: API key is missing")
		return false, nil
	}
	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.apiKey,
		"search_depth": t.depth,
		"max_results":  max,
	})
	if err != nil {
		return false, nil
	}

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, t.opts.Endpoint)
	defer span.End()

	var resp *http.Response
	delay := t.delay
	for attempt := 1; ; attempt++ {
		if err := t.opts.Limiters.Wait(ctx, ProviderTavily); err != nil {
			return false, nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return false, nil
		}
		req.Header.Set("Content-Type", "application/json")
		tracing.InjectTraceparent(ctx, req)

		resp, err = t.httpw.Do(req)
		if err != nil {
			log.Warn("Tavily search failed", zap.String("query", query), zap.Error(err))
			return false, nil
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= t.attempts {
			break
		}
		resp.Body.Close()
		if delay, err = backoff(ctx, delay); err != nil {
			return false, nil
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("Tavily search failed", zap.String("query", query), zap.Int("status", resp.StatusCode))
		return false, nil
	}

	var body struct {
		Results []struct {
			Title   string   `json:"title"`
			URL     string   `json:"url"`
			Content string   `json:"content"`
			Score   *float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Warn("Tavily response malformed", zap.Error(err))
		return false, nil
	}
	out := make([]models.SearchResult, 0, len(body.Results))
	for _, r := range body.Results {
		score := tavilyDefaultScore
		if r.Score != nil {
			score = *r.Score
		}
		out = append(out, models.SearchResult{
			Title:          r.Title,
			URL:            r.URL,
			Snippet:        snippet(r.Content),
			Provider:       ProviderTavily,
			RelevanceScore: clamp01(score),
		})
	}
	out = limitResults(out, max)
	log.Info("Tavily search completed", zap.String("query", query), zap.Int("results", len(out)))
	return true, out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
