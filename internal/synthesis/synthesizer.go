// Package synthesis turns an enriched run context into a course outline.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/llm"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/util"
)

// ErrNoModules is returned when the model produced an outline without modules.
var ErrNoModules = errors.New("synthesis produced no modules")

const (
	temperature = 0.7
	maxTokens   = 8000

	pdfReferenceTitle = "User-provided PDF guidance"
)

const systemPrompt = `You are an expert curriculum designer. You build course outlines that are
sequenced from foundational to advanced material, use measurable learning objectives
tagged with Bloom's taxonomy levels, and respect the requested duration exactly.
Respond with a single JSON object and no commentary.`

const schemaPrompt = `Return JSON with this shape:
{
  "course_summary": string,
  "prerequisites": [string],
  "course_level_objectives": [{"statement": string, "bloom_level": string, "assessment_method": string}],
  "modules": [{
    "title": string,
    "description": string,
    "estimated_hours": number,
    "learning_objectives": [{"statement": string, "bloom_level": string, "assessment_method": string}],
    "lessons": [{"title": string, "duration_minutes": number, "key_concepts": [string], "activities": [string]}],
    "assessment_type": string,
    "prerequisites": [string],
    "has_capstone": boolean,
    "project_description": string,
    "source_tags": [string]
  }],
  "references": [{"title": string, "source_type": "web" | "generated", "url": string, "author": string}]
}
bloom_level is one of remember, understand, apply, analyze, evaluate, create.`

// Synthesizer asks the language model for an outline and normalizes it.
type Synthesizer struct {
	gen    llm.Client
	logger *zap.Logger
}

func New(gen llm.Client, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{gen: gen, logger: logger}
}

// Run synthesizes the outline for sc. Any failure is returned; no partial
// outline is produced.
func (s *Synthesizer) Run(ctx context.Context, sc *session.Context) (*models.Outline, error) {
	if s.gen == nil {
		return nil, fmt.Errorf("no language model configured")
	}
	req := sc.Request()
	plan := Allocate(req.DurationHours, req.DepthRequirement, req.LearningMode)
	retrieval, _ := sc.Retrieval()
	web, _ := sc.WebFindings()

	s.logger.Debug("Synthesizing outline",
		zap.String("run_id", sc.RunID()),
		zap.String("plan", plan.String()))

	resp, err := s.gen.Generate(ctx, llm.Request{
		Prompt:      buildPrompt(req, plan, retrieval, web),
		System:      systemPrompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate outline: %w", err)
	}
	var raw rawOutline
	if err := llm.ParseJSON(resp.Content, &raw); err != nil {
		return nil, err
	}
	outline := structure(raw, req, plan, retrieval, web)
	if len(outline.Modules) == 0 {
		return nil, ErrNoModules
	}
	s.logger.Info("Course outline synthesized",
		zap.String("run_id", sc.RunID()),
		zap.Int("modules", len(outline.Modules)),
		zap.Int("references", len(outline.References)),
		zap.Float64("confidence", outline.Confidence))
	return outline, nil
}

func buildPrompt(req models.CourseRequest, plan Plan, retrieval *models.RetrievalResult, web *models.WebFindings) string {
	var b strings.Builder
	b.WriteString(schemaPrompt)
	b.WriteString("\n\nCOURSE REQUEST:\n")
	fmt.Fprintf(&b, "Title: %s\nDescription: %s\n", req.CourseTitle, req.CourseDescription)
	fmt.Fprintf(&b, "Audience: %s (%s)\nLearning mode: %s\nDepth: %s\nDuration: %d hours\n",
		req.AudienceLevel, req.AudienceCategory, req.LearningMode, req.DepthRequirement, req.DurationHours)
	if req.CustomConstraints != "" {
		fmt.Fprintf(&b, "Constraints: %s\n", req.CustomConstraints)
	}
	b.WriteString("\n")
	b.WriteString(contextSection(req, retrieval, web))
	b.WriteString("\n\nCONSTRAINTS:\n")
	fmt.Fprintf(&b, "- Produce exactly %d modules of about %.1f hours each, totalling %d hours.\n",
		plan.NumModules, plan.AvgHoursPerModule, req.DurationHours)
	fmt.Fprintf(&b, "- Start objectives at Bloom level %q and progress upward.\n", plan.PrimaryBlooms[0])
	fmt.Fprintf(&b, "- Emphasize these assessments: %s.\n", strings.Join(plan.AssessmentFocus, ", "))
	if plan.CapstoneRequired {
		b.WriteString("- The final module must be a capstone with a project description.\n")
	}
	b.WriteString("\nGenerate the course outline.")
	return b.String()
}

func contextSection(req models.CourseRequest, retrieval *models.RetrievalResult, web *models.WebFindings) string {
	var sections []string
	if retrieval != nil && len(retrieval.Chunks) > 0 {
		s := fmt.Sprintf("Institutional Sources (%d docs):", len(retrieval.Chunks))
		for i, c := range retrieval.Chunks {
			if i == 2 {
				break
			}
			s += " " + c.Title() + ";"
		}
		sections = append(sections, s)
	}
	if web != nil && len(web.Results) > 0 {
		s := fmt.Sprintf("Web Sources (%d results):", len(web.Results))
		for i, r := range web.Results {
			if i == 2 {
				break
			}
			s += " " + r.Title + ";"
		}
		if web.Summary != "" {
			s += "\nWeb summary: " + web.Summary
		}
		sections = append(sections, s)
	}
	if req.ReferenceText != "" {
		preview := strings.Join(strings.Fields(util.Prefix(req.ReferenceText, 500)), " ")
		sections = append(sections, fmt.Sprintf("PDF Guidance Material: %s...\n(Use this as supplementary guidance, not primary source)", preview))
	}
	if len(sections) == 0 {
		return "CONTEXT: No external sources provided. Course outline based on user input and general knowledge."
	}
	return "CONTEXT:\n" + strings.Join(sections, "\n")
}

type rawObjective struct {
	Statement        string `json:"statement"`
	BloomLevel       string `json:"bloom_level"`
	AssessmentMethod string `json:"assessment_method"`
}

type rawLesson struct {
	Title           string   `json:"title"`
	DurationMinutes float64  `json:"duration_minutes"`
	KeyConcepts     []string `json:"key_concepts"`
	Activities      []string `json:"activities"`
}

type rawModule struct {
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	EstimatedHours     float64        `json:"estimated_hours"`
	Objectives         []rawObjective `json:"learning_objectives"`
	Lessons            []rawLesson    `json:"lessons"`
	AssessmentType     string         `json:"assessment_type"`
	Prerequisites      []string       `json:"prerequisites"`
	HasCapstone        bool           `json:"has_capstone"`
	ProjectDescription string         `json:"project_description"`
	SourceTags         []string       `json:"source_tags"`
}

type rawReference struct {
	Title      string  `json:"title"`
	SourceType string  `json:"source_type"`
	URL        string  `json:"url"`
	Author     string  `json:"author"`
	Confidence float64 `json:"confidence_score"`
}

type rawOutline struct {
	CourseSummary string         `json:"course_summary"`
	Prerequisites []string       `json:"prerequisites"`
	Objectives    []rawObjective `json:"course_level_objectives"`
	Modules       []rawModule    `json:"modules"`
	References    []rawReference `json:"references"`
}

func bloom(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	for _, b := range models.BloomLevels {
		if b == level {
			return b
		}
	}
	return "understand"
}

func objectives(in []rawObjective, prefix string) []models.Objective {
	var out []models.Objective
	for _, o := range in {
		if strings.TrimSpace(o.Statement) == "" {
			continue
		}
		method := o.AssessmentMethod
		if method == "" {
			method = "Quiz"
		}
		out = append(out, models.Objective{
			ID:               fmt.Sprintf("%s_%d", prefix, len(out)+1),
			Statement:        o.Statement,
			BloomLevel:       bloom(o.BloomLevel),
			AssessmentMethod: method,
		})
	}
	return out
}

// structure maps the model output onto the outline, assigning canonical ids.
func structure(raw rawOutline, req models.CourseRequest, plan Plan, retrieval *models.RetrievalResult, web *models.WebFindings) *models.Outline {
	o := &models.Outline{
		CourseTitle:        req.CourseTitle,
		CourseSummary:      raw.CourseSummary,
		AudienceLevel:      req.AudienceLevel,
		AudienceCategory:   req.AudienceCategory,
		LearningMode:       req.LearningMode,
		DepthRequirement:   req.DepthRequirement,
		TotalDurationHours: float64(req.DurationHours),
		Prerequisites:      raw.Prerequisites,
		Objectives:         objectives(raw.Objectives, "LO"),
		GeneratedAt:        time.Now(),
	}
	if o.CourseSummary == "" {
		o.CourseSummary = req.CourseDescription
	}

	for i, rm := range raw.Modules {
		id := models.ModuleID(i + 1)
		m := models.Module{
			ID:                 id,
			Title:              strings.TrimSpace(rm.Title),
			Description:        rm.Description,
			EstimatedHours:     rm.EstimatedHours,
			Objectives:         objectives(rm.Objectives, fmt.Sprintf("LO_%d", i+1)),
			AssessmentType:     rm.AssessmentType,
			Prerequisites:      rm.Prerequisites,
			HasCapstone:        rm.HasCapstone,
			ProjectDescription: rm.ProjectDescription,
			SourceTags:         rm.SourceTags,
		}
		if m.Title == "" {
			m.Title = "Untitled Module"
		}
		if m.EstimatedHours <= 0 {
			m.EstimatedHours = plan.AvgHoursPerModule
		}
		if m.AssessmentType == "" {
			m.AssessmentType = "quiz"
		}
		for j, rl := range rm.Lessons {
			l := models.Lesson{
				ID:              fmt.Sprintf("L_%s_%d", id, j+1),
				Title:           strings.TrimSpace(rl.Title),
				DurationMinutes: int(rl.DurationMinutes),
				KeyConcepts:     rl.KeyConcepts,
				Activities:      rl.Activities,
			}
			if l.Title == "" {
				l.Title = "Untitled Lesson"
			}
			if l.DurationMinutes <= 0 {
				l.DurationMinutes = 60
			}
			m.Lessons = append(m.Lessons, l)
		}
		o.Modules = append(o.Modules, m)
	}

	o.References = references(raw.References, req, retrieval, web)
	o.Confidence = confidence(req, retrieval, web)
	return o
}

func references(raw []rawReference, req models.CourseRequest, retrieval *models.RetrievalResult, web *models.WebFindings) []models.Reference {
	var out []models.Reference
	for _, r := range raw {
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		typ := models.SourceGenerated
		if r.SourceType == models.SourceWeb {
			typ = models.SourceWeb
		}
		conf := r.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.8
		}
		out = append(out, models.Reference{Title: r.Title, SourceType: typ, URL: r.URL, Author: r.Author, Confidence: conf})
	}
	if web != nil {
		for i, r := range web.Results {
			if i == 3 {
				break
			}
			out = append(out, models.Reference{Title: r.Title, SourceType: models.SourceWeb, URL: r.URL, Confidence: 0.85})
		}
	}
	if retrieval != nil {
		for i, c := range retrieval.Chunks {
			if i == 3 {
				break
			}
			ref := models.Reference{Title: c.Title(), SourceType: models.SourceRetrieved, Confidence: 0.9}
			ref.URL, _ = c.Metadata["url"].(string)
			ref.Author, _ = c.Metadata["author"].(string)
			out = append(out, ref)
		}
	}
	if req.ReferenceText != "" {
		out = append(out, models.Reference{Title: pdfReferenceTitle, SourceType: models.SourcePDF, Confidence: 0.8})
	}
	return out
}

// confidence rises with each kind of context that informed the outline.
func confidence(req models.CourseRequest, retrieval *models.RetrievalResult, web *models.WebFindings) float64 {
	score := 0.6
	if retrieval != nil && len(retrieval.Chunks) > 0 {
		score += 0.15
	}
	if web != nil && len(web.Results) > 0 {
		score += 0.15
	}
	if req.ReferenceText != "" {
		score += 0.10
	}
	if score > 1 {
		score = 1
	}
	return score
}
