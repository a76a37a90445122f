package query

import (
	"fmt"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/util"
)

const (
	perKindLimit        = 3
	excerptLimit        = 100
	referenceTextTitle  = "User-provided PDF guidance"
	referenceTextWeight = 0.8
)

// Source is one traced origin of module content.
type Source struct {
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	URL        string  `json:"url,omitempty"`
	Author     string  `json:"author,omitempty"`
	Confidence float64 `json:"confidence"`
	Excerpt    string  `json:"excerpt,omitempty"`
}

// Trace is the provenance report for a module.
type Trace struct {
	ModuleID   string   `json:"module_id"`
	Title      string   `json:"title"`
	Sources    []Source `json:"sources"`
	Summary    string   `json:"sources_summary"`
	Confidence float64  `json:"confidence_level"`
}

// Tracer lists the sources behind a module. Every title and URL it returns
// is copied from the session; nothing is generated.
type Tracer struct{}

func (Tracer) Trace(moduleID string, qc *session.QueryContext) (*Trace, bool) {
	m, ok := qc.FindModule(moduleID)
	if !ok {
		return nil, false
	}

	var sources []Source
	for i, c := range qc.RetrievedChunks() {
		if i == perKindLimit {
			break
		}
		conf := c.SimilarityScore
		if conf <= 0 {
			conf = 0.85
		}
		s := Source{Type: models.SourceRetrieved, Title: c.Title(), Confidence: conf, Excerpt: util.Prefix(c.Content, excerptLimit)}
		s.URL, _ = c.Metadata["url"].(string)
		sources = append(sources, s)
	}
	for i, r := range qc.WebResults() {
		if i == perKindLimit {
			break
		}
		conf := r.RelevanceScore
		if conf <= 0 {
			conf = 0.8
		}
		sources = append(sources, Source{Type: models.SourceWeb, Title: r.Title, URL: r.URL, Confidence: conf, Excerpt: util.Prefix(r.Snippet, excerptLimit)})
	}
	for i, r := range qc.References() {
		if i == perKindLimit {
			break
		}
		sources = append(sources, Source{Type: r.SourceType, Title: r.Title, URL: r.URL, Author: r.Author, Confidence: r.Confidence})
	}
	if qc.HasReferenceText() {
		sources = append(sources, Source{Type: models.SourcePDF, Title: referenceTextTitle, Confidence: referenceTextWeight})
	}

	return &Trace{
		ModuleID:   m.ID,
		Title:      m.Title,
		Sources:    sources,
		Summary:    summarizeSources(sources),
		Confidence: meanConfidence(sources),
	}, true
}

func summarizeSources(sources []Source) string {
	if len(sources) == 0 {
		return "No recorded sources informed this module."
	}
	titles := make([]string, 0, perKindLimit)
	for i, s := range sources {
		if i == perKindLimit {
			break
		}
		titles = append(titles, s.Title)
	}
	summary := fmt.Sprintf("This module draws from %d sources: %s", len(sources), strings.Join(titles, ", "))
	if len(sources) > perKindLimit {
		summary += fmt.Sprintf(" and %d more.", len(sources)-perKindLimit)
	}
	return summary
}

func meanConfidence(sources []Source) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += s.Confidence
	}
	return sum / float64(len(sources))
}
