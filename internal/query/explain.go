package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
)

var (
	wordIDPattern  = regexp.MustCompile(`(?i)\b(?:module|unit)\s+(\d+)`)
	shortIDPattern = regexp.MustCompile(`(?i)\b[mu]_(\d+)`)
)

// ExtractModuleID finds a module reference such as "module 2", "unit 2",
// "M_2" or "U_2" and returns its canonical id.
func ExtractModuleID(text string) (string, bool) {
	for _, p := range []*regexp.Regexp{wordIDPattern, shortIDPattern} {
		if m := p.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return models.ModuleID(n), true
			}
		}
	}
	return "", false
}

func notFound(id string) string {
	return fmt.Sprintf("Module %s not found in course outline.", id)
}

var assessmentNotes = map[string]string{
	"quiz":       "Quizzes test conceptual understanding and knowledge retention.",
	"project":    "Projects encourage hands-on implementation and real-world problem solving.",
	"exam":       "Exams provide comprehensive evaluation of mastery across multiple topics.",
	"capstone":   "The capstone project synthesizes all learning and demonstrates professional readiness.",
	"discussion": "Discussions promote peer learning and critical thinking.",
	"case_study": "Case studies apply concepts to realistic scenarios.",
}

// Explainer answers "why" questions using only values stored in the session.
type Explainer struct{}

// Explain composes the rationale for including a module. The second return
// is false when the module does not exist.
func (Explainer) Explain(moduleID string, qc *session.QueryContext) (string, bool) {
	m, ok := qc.FindModule(moduleID)
	if !ok {
		return notFound(moduleID), false
	}
	req, _ := qc.Request()

	parts := []string{
		fmt.Sprintf("This module aligns with the course's %s learning mode.", humanize(req.LearningMode)),
		fmt.Sprintf("It is pitched at the requested %s depth.", humanize(req.DepthRequirement)),
	}
	if levels := bloomProgression(m.Objectives); len(levels) > 0 {
		parts = append(parts, fmt.Sprintf("The learning objectives progress through Bloom's taxonomy levels: %s.", strings.Join(levels, ", ")))
	}
	if fb, ok := qc.Feedback(m.ID); ok && fb.Reasoning != "" {
		parts = append(parts, fmt.Sprintf("Validator assessment (score %.2f): %s", fb.Score, fb.Reasoning))
	}
	if m.AssessmentType != "" {
		s := fmt.Sprintf("Assessment type (%s) lets learners demonstrate mastery of the learning objectives.", m.AssessmentType)
		if note, ok := assessmentNotes[strings.ToLower(m.AssessmentType)]; ok {
			s += " " + note
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " "), true
}

// bloomProgression returns the distinct levels used, in taxonomy order.
func bloomProgression(objs []models.Objective) []string {
	seen := make(map[string]bool, len(objs))
	for _, o := range objs {
		seen[o.BloomLevel] = true
	}
	var out []string
	for _, b := range models.BloomLevels {
		if seen[b] {
			out = append(out, b)
		}
	}
	return out
}

func humanize(enum string) string {
	return strings.ReplaceAll(enum, "_", " ")
}
