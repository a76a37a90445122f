package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bloom taxonomy levels, lowest first.
var BloomLevels = []string{"remember", "understand", "apply", "analyze", "evaluate", "create"}

// Reference source types
const (
	SourceRetrieved = "retrieved"
	SourceWeb       = "web"
	SourcePDF       = "pdf"
	SourceGenerated = "generated"
)

// Outline is the generated course artifact.
type Outline struct {
	CourseTitle        string      `json:"course_title" validate:"required"`
	CourseSummary      string      `json:"course_summary"`
	AudienceLevel      string      `json:"audience_level"`
	AudienceCategory   string      `json:"audience_category"`
	LearningMode       string      `json:"learning_mode"`
	DepthRequirement   string      `json:"depth_requirement"`
	TotalDurationHours float64     `json:"total_duration_hours" validate:"gte=0"`
	Prerequisites      []string    `json:"prerequisites,omitempty"`
	Objectives         []Objective `json:"course_level_learning_objectives,omitempty" validate:"dive"`
	Modules            []Module    `json:"modules" validate:"required,min=1,dive"`
	References         []Reference `json:"references,omitempty" validate:"dive"`
	Confidence         float64     `json:"confidence_score" validate:"gte=0,lte=1"`
	GeneratedAt        time.Time   `json:"generated_at"`
}

// Module is one unit of the outline.
type Module struct {
	ID                 string      `json:"module_id" validate:"required"`
	Title              string      `json:"title" validate:"required"`
	Description        string      `json:"description"`
	EstimatedHours     float64     `json:"estimated_hours" validate:"gte=0"`
	Objectives         []Objective `json:"learning_objectives" validate:"dive"`
	Lessons            []Lesson    `json:"lessons" validate:"dive"`
	AssessmentType     string      `json:"assessment_type"`
	Prerequisites      []string    `json:"prerequisites,omitempty"`
	HasCapstone        bool        `json:"has_capstone,omitempty"`
	ProjectDescription string      `json:"project_description,omitempty"`
	SourceTags         []string    `json:"source_tags,omitempty"`
}

// Objective is a measurable learning objective.
type Objective struct {
	ID               string `json:"objective_id"`
	Statement        string `json:"statement" validate:"required"`
	BloomLevel       string `json:"bloom_level" validate:"omitempty,oneof=remember understand apply analyze evaluate create"`
	AssessmentMethod string `json:"assessment_method,omitempty"`
}

// Lesson is an ordered session inside a module.
type Lesson struct {
	ID              string   `json:"lesson_id"`
	Title           string   `json:"title" validate:"required"`
	DurationMinutes int      `json:"duration_minutes" validate:"gte=0"`
	KeyConcepts     []string `json:"key_concepts,omitempty"`
	Activities      []string `json:"activities,omitempty"`
}

// Reference is a source the outline cites.
type Reference struct {
	Title      string  `json:"title" validate:"required"`
	SourceType string  `json:"source_type" validate:"omitempty,oneof=retrieved web pdf generated"`
	URL        string  `json:"url,omitempty"`
	Confidence float64 `json:"confidence_score" validate:"gte=0,lte=1"`
	Author     string  `json:"author,omitempty"`
}

// ModuleID renders the canonical identifier for the n-th module.
func ModuleID(n int) string {
	return fmt.Sprintf("M_%d", n)
}

// FindModule resolves id against the outline. It accepts an exact id match
// or a match on the numeric suffix, so "M_2" finds a module stored as "U_2".
func (o *Outline) FindModule(id string) (Module, bool) {
	if o == nil {
		return Module{}, false
	}
	for _, m := range o.Modules {
		if strings.EqualFold(m.ID, id) {
			return m, true
		}
	}
	n, ok := idNumber(id)
	if !ok {
		return Module{}, false
	}
	for _, m := range o.Modules {
		if mn, ok := idNumber(m.ID); ok && mn == n {
			return m, true
		}
	}
	return Module{}, false
}

// Clone returns a deep copy of the outline.
func (o *Outline) Clone() *Outline {
	if o == nil {
		return nil
	}
	c := *o
	c.Prerequisites = append([]string(nil), o.Prerequisites...)
	c.Objectives = append([]Objective(nil), o.Objectives...)
	c.References = append([]Reference(nil), o.References...)
	c.Modules = make([]Module, len(o.Modules))
	for i, m := range o.Modules {
		mc := m
		mc.Objectives = append([]Objective(nil), m.Objectives...)
		mc.Lessons = make([]Lesson, len(m.Lessons))
		for j, l := range m.Lessons {
			lc := l
			lc.KeyConcepts = append([]string(nil), l.KeyConcepts...)
			lc.Activities = append([]string(nil), l.Activities...)
			mc.Lessons[j] = lc
		}
		mc.Prerequisites = append([]string(nil), m.Prerequisites...)
		mc.SourceTags = append([]string(nil), m.SourceTags...)
		c.Modules[i] = mc
	}
	return &c
}

func idNumber(id string) (int, bool) {
	idx := strings.LastIndexAny(id, "_ ")
	n, err := strconv.Atoi(strings.TrimSpace(id[idx+1:]))
	if err != nil {
		return 0, false
	}
	return n, true
}
