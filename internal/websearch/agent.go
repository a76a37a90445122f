package websearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/llm"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/util"
)

const (
	searchBudget     = 3
	maxPerQuery      = 5
	promptResults    = 10
	promptSnippetLen = 150
	highQuality      = 0.7

	noResultsSummary = "No web search results available."
	fallbackNote     = "Fallback extraction (LLM synthesis failed)"
)

const synthesisSystem = "You are a curriculum research assistant. You read web search results " +
	"and extract what they say about how a course on the topic is usually structured. " +
	"Respond with a single JSON object and nothing else."

// Searcher is the subset of Toolchain the agent needs.
type Searcher interface {
	BatchSearch(ctx context.Context, queries []string, maxPerQuery int) ([]models.SearchResult, map[string]QueryStats)
	Primary() string
}

// Agent gathers and condenses external knowledge for one run.
type Agent struct {
	search Searcher
	gen    llm.Client
	logger *zap.Logger
}

// NewAgent creates the agent. gen may be nil, in which case findings are
// always built by deterministic extraction.
func NewAgent(search Searcher, gen llm.Client, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{search: search, gen: gen, logger: logger}
}

// Queries builds the search queries for a request.
func Queries(req models.CourseRequest) []string {
	qs := []string{req.CourseTitle + " curriculum"}
	if fs := util.FirstSentence(req.CourseDescription); fs != "" {
		qs = append(qs, req.CourseTitle+" "+fs)
	}
	if len(qs) > searchBudget {
		qs = qs[:searchBudget]
	}
	return qs
}

// Run never fails; every degradation is folded into the findings.
func (a *Agent) Run(ctx context.Context, sc *session.Context) *models.WebFindings {
	start := time.Now()
	req := sc.Request()
	log := a.logger.With(zap.String("run_id", sc.RunID()))

	queries := Queries(req)
	all, stats := a.search.BatchSearch(ctx, queries, maxPerQuery)
	results := Deduplicate(all)
	log.Info("Web search results gathered",
		zap.Int("total", len(all)),
		zap.Int("unique", len(results)))

	var out *models.WebFindings
	if len(results) == 0 {
		out = &models.WebFindings{
			Query:        strings.Join(queries, " | "),
			Summary:      noResultsSummary,
			ProviderUsed: ProviderUnknown,
		}
	} else {
		synth, err := a.synthesize(ctx, req, results)
		if err != nil {
			log.Warn("Web findings synthesis failed, using simple extraction", zap.Error(err))
			out = extract(results)
		} else {
			out = synth
		}
		out.Query = strings.Join(queries, " | ")
		out.ProviderUsed = results[0].Provider
		out.SourceLinks = sourceLinks(results)
		out.Results = results
	}

	primary := a.search.Primary()
	for _, s := range stats {
		if s.Provider != primary {
			out.FallbackUsed = true
			break
		}
	}
	out.ResultCount = len(results)
	for _, r := range results {
		if r.RelevanceScore > highQuality {
			out.HighQualityResultCount++
		}
	}
	out.ExecutionTime = time.Since(start)

	log.Info("Web search completed",
		zap.Float64("confidence", out.Confidence),
		zap.Int("results", out.ResultCount),
		zap.String("provider", out.ProviderUsed),
		zap.Bool("fallback_used", out.FallbackUsed),
		zap.Duration("duration", out.ExecutionTime))
	return out
}

type synthesisPayload struct {
	Summary            string   `json:"search_summary"`
	Topics             []string `json:"key_topics_found"`
	LearningObjectives []string `json:"learning_objectives_found"`
	Skills             []string `json:"skillset_recommendations"`
	RecommendedModules []struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Topics      []string `json:"key_topics"`
	} `json:"recommended_modules"`
}

func (a *Agent) synthesize(ctx context.Context, req models.CourseRequest, results []models.SearchResult) (*models.WebFindings, error) {
	if a.gen == nil {
		return nil, fmt.Errorf("no language model configured")
	}
	resp, err := a.gen.Generate(ctx, llm.Request{
		Prompt: synthesisPrompt(req, results),
		System: synthesisSystem,
	})
	if err != nil {
		return nil, err
	}
	var p synthesisPayload
	if err := llm.ParseJSON(resp.Content, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Summary) == "" {
		return nil, fmt.Errorf("synthesis returned no summary")
	}

	out := &models.WebFindings{
		Summary:            p.Summary,
		Topics:             p.Topics,
		LearningObjectives: p.LearningObjectives,
		Skills:             p.Skills,
		Confidence:         0.5,
	}
	if len(results) > 2 {
		out.Confidence = 0.7
	}
	for _, m := range p.RecommendedModules {
		if strings.TrimSpace(m.Title) == "" {
			continue
		}
		out.RecommendedModules = append(out.RecommendedModules, models.RecommendedModule{
			Title:       m.Title,
			Description: m.Description,
			Topics:      m.Topics,
		})
	}
	return out, nil
}

func formatResults(results []models.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i == promptResults {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n   Source: %s (score: %.2f)\n   %s...\n\n",
			i+1, r.Title, r.URL, r.Provider, r.RelevanceScore, util.Prefix(r.Snippet, promptSnippetLen))
	}
	return b.String()
}

func synthesisPrompt(req models.CourseRequest, results []models.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Course title: %s\n", req.CourseTitle)
	fmt.Fprintf(&b, "Course description: %s\n\n", req.CourseDescription)
	b.WriteString("Web search results:\n\n")
	b.WriteString(formatResults(results))
	b.WriteString(`Summarize what these sources say about teaching this course. Return JSON with keys:
"search_summary" (2-3 sentences), "key_topics_found" (list of strings),
"recommended_modules" (list of {"title", "description", "key_topics"}),
"learning_objectives_found" (list of strings), "skillset_recommendations" (list of strings).
Only use information present in the results above.`)
	return b.String()
}

// extract builds findings without a language model.
func extract(results []models.SearchResult) *models.WebFindings {
	titles := make([]string, 0, 3)
	for i, r := range results {
		if i == 3 {
			break
		}
		titles = append(titles, r.Title)
	}
	return &models.WebFindings{
		Summary:    fmt.Sprintf("Found %d search results. Top sources: %s.", len(results), strings.Join(titles, ", ")),
		Confidence: 0.5,
		Notes:      fallbackNote,
	}
}

func sourceLinks(results []models.SearchResult) []models.SourceLink {
	out := make([]models.SourceLink, len(results))
	for i, r := range results {
		out[i] = models.SourceLink{Title: r.Title, URL: r.URL, Provider: r.Provider, RelevanceScore: r.RelevanceScore}
	}
	return out
}
