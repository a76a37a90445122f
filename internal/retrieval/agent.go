// Package retrieval searches the institutional knowledge base for material
// relevant to a course request.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/util"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/vectordb"
)

const (
	perQueryK  = 5
	topK       = 5
	maxQueries = 3

	highScore     = 0.7
	boostPerHigh  = 0.05
	maxBoost      = 0.10
	emptyStoreMsg = "Knowledge base is empty"
	noKnowledge   = "No relevant knowledge found in the institutional repository."
)

// VectorSearcher is the knowledge base the agent queries.
type VectorSearcher interface {
	SimilaritySearch(ctx context.Context, query string, k int, filters map[string]string) ([]models.RetrievedChunk, error)
	CollectionStats(ctx context.Context) (vectordb.Stats, error)
}

// Agent runs retrieval for one session.
type Agent struct {
	store  VectorSearcher
	logger *zap.Logger
}

func NewAgent(store VectorSearcher, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{store: store, logger: logger}
}

// Run never fails: store errors degrade to an empty, zero-confidence result.
func (a *Agent) Run(ctx context.Context, sc *session.Context) *models.RetrievalResult {
	start := time.Now()
	req := sc.Request()
	log := a.logger.With(zap.String("run_id", sc.RunID()))
	out := &models.RetrievalResult{Summary: noKnowledge}
	defer func() { out.ExecutionTime = time.Since(start) }()

	stats, err := a.store.CollectionStats(ctx)
	if err != nil {
		log.Warn("Knowledge base stats unavailable", zap.Error(err))
		out.Notes = fmt.Sprintf("Error during retrieval: %v", err)
		return out
	}
	if stats.DocumentCount == 0 {
		log.Info("Knowledge base is empty, retrieval skipped")
		out.Notes = emptyStoreMsg
		return out
	}

	queries := Queries(req)
	filters := Filters(req)
	out.QueriesExecuted = queries
	for k := range filters {
		out.FiltersApplied = append(out.FiltersApplied, k)
	}
	sort.Strings(out.FiltersApplied)

	var hits []models.RetrievedChunk
	failed := 0
	for _, q := range queries {
		res, err := a.store.SimilaritySearch(ctx, q, perQueryK, filters)
		if err != nil {
			failed++
			log.Warn("Search query failed", zap.String("query", q), zap.Error(err))
			continue
		}
		hits = append(hits, res...)
	}
	out.TotalHits = len(hits)

	top := Rank(hits, topK)
	out.Chunks = top
	out.ReturnedCount = len(top)
	out.Confidence = Confidence(top)
	out.Summary = Summarize(top, req)
	switch {
	case len(queries) > 0 && failed == len(queries):
		out.Notes = "All search queries failed"
	default:
		out.Notes = fmt.Sprintf("Successfully retrieved %d relevant chunks", len(top))
	}

	log.Info("Retrieval completed",
		zap.Int("queries", len(queries)),
		zap.Int("total_hits", out.TotalHits),
		zap.Int("returned", out.ReturnedCount),
		zap.Float64("confidence", out.Confidence))
	return out
}

// Queries derives up to three search queries from the title and the first
// sentence of the description, deduplicated case-insensitively.
func Queries(req models.CourseRequest) []string {
	return util.DedupeFold([]string{req.CourseTitle, util.FirstSentence(req.CourseDescription)}, maxQueries)
}

// Filters returns exact-match metadata filters for the request.
func Filters(req models.CourseRequest) map[string]string {
	f := map[string]string{}
	if req.AudienceLevel != "" {
		f["audience_level"] = req.AudienceLevel
	}
	if d := req.Domain(); d != "" {
		f["subject_domain"] = d
	}
	return f
}

// Rank keeps the first hit per document, orders by similarity (stable) and
// truncates to k.
func Rank(hits []models.RetrievedChunk, k int) []models.RetrievedChunk {
	seen := make(map[string]bool, len(hits))
	unique := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		if seen[h.DocumentID] {
			continue
		}
		seen[h.DocumentID] = true
		unique = append(unique, h)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].SimilarityScore > unique[j].SimilarityScore
	})
	if len(unique) > k {
		unique = unique[:k]
	}
	return unique
}

// Confidence is the mean similarity plus 0.05 per hit above 0.7 (at most
// 0.10), capped at 1.
func Confidence(chunks []models.RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	high := 0
	for _, c := range chunks {
		sum += c.SimilarityScore
		if c.SimilarityScore > highScore {
			high++
		}
	}
	boost := float64(high) * boostPerHigh
	if boost > maxBoost {
		boost = maxBoost
	}
	conf := sum/float64(len(chunks)) + boost
	if conf > 1 {
		conf = 1
	}
	return conf
}

// Summarize describes the chunks by source type in first-seen order.
func Summarize(chunks []models.RetrievedChunk, req models.CourseRequest) string {
	if len(chunks) == 0 {
		return noKnowledge
	}
	counts := map[string]int{}
	var order []string
	for _, c := range chunks {
		typ, _ := c.Metadata["source_type"].(string)
		if typ == "" {
			typ = "unknown"
		}
		if counts[typ] == 0 {
			order = append(order, typ)
		}
		counts[typ]++
	}
	parts := make([]string, len(order))
	for i, typ := range order {
		parts[i] = fmt.Sprintf("%d %s", counts[typ], typ)
	}
	return fmt.Sprintf("Retrieved %d relevant knowledge chunks (%s) aligned with '%s' for %s learners.",
		len(chunks), strings.Join(parts, ", "), req.CourseTitle, req.AudienceLevel)
}
