package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/tracing"
)

const serpAPIDefaultScore = 0.6

// SerpAPI is the last provider in the chain.
type SerpAPI struct {
	apiKey string
	opts   ProviderOptions
	httpw  *circuitbreaker.HTTPWrapper
}

func NewSerpAPI(apiKey string, opts ProviderOptions) *SerpAPI {
	o := opts.withDefaults("https://serpapi.com/search.json")
	return &SerpAPI{apiKey: apiKey, opts: o, httpw: newWrapper("serpapi", o)}
}

func (s *SerpAPI) Name() string { return ProviderSerpAPI }

func (s *SerpAPI) Search(ctx context.Context, query string, max int) (bool, []models.SearchResult) {
	log := s.opts.Logger
	if strings.TrimSpace(s.apiKey) == "" {
		log.Debug("SerpAPI skipped: API key is missing")
		return false, nil
	}
	if err := s.opts.Limiters.Wait(ctx, ProviderSerpAPI); err != nil {
		return false, nil
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", s.apiKey)
	if max > 0 {
		params.Set("num", strconv.Itoa(max))
	}
	endpoint := s.opts.Endpoint + "?" + params.Encode()

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodGet, s.opts.Endpoint)
	defer span.End()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, nil
	}
	tracing.InjectTraceparent(ctx, req)
	resp, err := s.httpw.Do(req)
	if err != nil {
		log.Warn("SerpAPI search failed", zap.String("query", query), zap.Error(err))
		return false, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn("SerpAPI search failed", zap.String("query", query), zap.Int("status", resp.StatusCode))
		return false, nil
	}

	var body struct {
		OrganicResults []struct {
			Title   string   `json:"title"`
			Link    string   `json:"link"`
			Snippet string   `json:"snippet"`
			Score   *float64 `json:"score"`
		} `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Warn("SerpAPI response malformed", zap.Error(err))
		return false, nil
	}
	out := make([]models.SearchResult, 0, len(body.OrganicResults))
	for _, r := range body.OrganicResults {
		score := serpAPIDefaultScore
		if r.Score != nil {
			score = *r.Score
		}
		out = append(out, models.SearchResult{
			Title:          r.Title,
			URL:            r.Link,
			Snippet:        snippet(r.Snippet),
			Provider:       ProviderSerpAPI,
			RelevanceScore: clamp01(score),
		})
	}
	out = limitResults(out, max)
	log.Info("SerpAPI search completed", zap.String("query", query), zap.Int("results", len(out)))
	return true, out
}
