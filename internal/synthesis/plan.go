package synthesis

import (
	"fmt"
	"math"
)

const (
	hoursPerModule = 6.0
	minModules     = 3
	maxModules     = 12
)

// Plan is the module budget computed before prompting.
type Plan struct {
	NumModules        int
	AvgHoursPerModule float64
	PrimaryBlooms     []string
	AssessmentFocus   []string
	CapstoneRequired  bool
}

func (p Plan) String() string {
	return fmt.Sprintf("Expected %d modules, ~%.1fh each", p.NumModules, p.AvgHoursPerModule)
}

type depthProfile struct {
	multiplier float64
	blooms     []string
}

var (
	overviewDepth       = depthProfile{0.7, []string{"remember", "understand"}}
	intermediateDepth   = depthProfile{1.0, []string{"understand", "apply"}}
	implementationDepth = depthProfile{1.3, []string{"apply", "analyze"}}
	researchDepth       = depthProfile{1.5, []string{"analyze", "evaluate", "create"}}
)

var depthProfiles = map[string]depthProfile{
	"introductory":            overviewDepth,
	"conceptual":              intermediateDepth,
	"implementation_level":    implementationDepth,
	"advanced_implementation": implementationDepth,
	"industry_level":          implementationDepth,
	"research_level":          researchDepth,
	"phd_level":               researchDepth,
}

type modeProfile struct {
	moduleMultiplier float64
	assessments      []string
	capstone         bool
}

var modeProfiles = map[string]modeProfile{
	"theory_oriented":       {1.0, []string{"quiz", "exam"}, false},
	"exam_oriented":         {1.0, []string{"quiz", "exam"}, false},
	"practical_hands_on":    {1.0, []string{"project", "code_review"}, false},
	"project_based":         {1.1, []string{"project", "code_review"}, true},
	"case_study_driven":     {1.0, []string{"case_study", "discussion"}, false},
	"interview_preparation": {1.3, []string{"coding_problem", "timed_challenge"}, false},
	"research_oriented":     {1.0, []string{"paper", "research_project"}, true},
	"hybrid":                {1.0, []string{"quiz", "project"}, false},
}

// Allocate derives the module count and per-module hours for a request.
func Allocate(totalHours int, depth, mode string) Plan {
	d, ok := depthProfiles[depth]
	if !ok {
		d = intermediateDepth
	}
	m, ok := modeProfiles[mode]
	if !ok {
		m = modeProfiles["theory_oriented"]
	}

	perModule := hoursPerModule / d.multiplier
	n := int(math.Round(float64(totalHours) / perModule))
	if n < minModules {
		n = minModules
	}
	if n > maxModules {
		n = maxModules
	}
	if m.moduleMultiplier != 1.0 {
		n = int(float64(n) * m.moduleMultiplier)
		if n < minModules {
			n = minModules
		}
	}
	return Plan{
		NumModules:        n,
		AvgHoursPerModule: float64(totalHours) / float64(n),
		PrimaryBlooms:     d.blooms,
		AssessmentFocus:   m.assessments,
		CapstoneRequired:  m.capstone,
	}
}
