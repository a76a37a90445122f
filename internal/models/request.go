package models

import "strings"

// Audience levels
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelProExpert    = "pro_expert"
	LevelMixed        = "mixed_level"
)

// AudienceLevels lists the accepted audience levels, lowest first.
var AudienceLevels = []string{LevelBeginner, LevelIntermediate, LevelAdvanced, LevelProExpert, LevelMixed}

// Subject domains used as retrieval metadata.
var SubjectDomains = map[string]string{
	"business":    "business",
	"technical":   "technical",
	"healthcare":  "healthcare",
	"education":   "education",
	"creative":    "creative",
	"other":       "other",
	"tech":        "technical",
	"engineering": "technical",
	"cs":          "technical",
	"medicine":    "healthcare",
	"arts":        "creative",
}

// CourseRequest is the structured input to a generation run.
type CourseRequest struct {
	CourseTitle       string `json:"course_title" yaml:"course_title" validate:"required,min=3,max=200"`
	CourseDescription string `json:"course_description" yaml:"course_description" validate:"required,min=10"`
	AudienceLevel     string `json:"audience_level" yaml:"audience_level" validate:"required,oneof=beginner intermediate advanced pro_expert mixed_level"`
	AudienceCategory  string `json:"audience_category" yaml:"audience_category" validate:"required,oneof=school_students college_students undergraduate postgraduate researchers professors_faculty working_professionals industry_experts"`
	LearningMode      string `json:"learning_mode" yaml:"learning_mode" validate:"required,oneof=theory_oriented practical_hands_on project_based case_study_driven research_oriented exam_oriented interview_preparation hybrid"`
	DepthRequirement  string `json:"depth_requirement" yaml:"depth_requirement" validate:"required,oneof=introductory conceptual implementation_level advanced_implementation industry_level research_level phd_level"`
	DurationHours     int    `json:"duration_hours" yaml:"duration_hours" validate:"min=1,max=500"`
	SubjectDomain     string `json:"subject_domain,omitempty" yaml:"subject_domain,omitempty"`
	ReferenceText     string `json:"reference_text,omitempty" yaml:"reference_text,omitempty"`
	CustomConstraints string `json:"custom_constraints,omitempty" yaml:"custom_constraints,omitempty"`
}

// Normalize trims free text and lower-cases enumerated fields in place.
func (r *CourseRequest) Normalize() {
	r.CourseTitle = strings.TrimSpace(r.CourseTitle)
	r.CourseDescription = strings.TrimSpace(r.CourseDescription)
	r.AudienceLevel = normalizeEnum(r.AudienceLevel)
	r.AudienceCategory = normalizeEnum(r.AudienceCategory)
	r.LearningMode = normalizeEnum(r.LearningMode)
	r.DepthRequirement = normalizeEnum(r.DepthRequirement)
	r.SubjectDomain = normalizeEnum(r.SubjectDomain)
	r.CustomConstraints = strings.TrimSpace(r.CustomConstraints)
}

// Domain maps the optional subject domain onto the retrieval taxonomy.
// Unknown values map to "other"; an empty value yields "".
func (r *CourseRequest) Domain() string {
	if r.SubjectDomain == "" {
		return ""
	}
	if d, ok := SubjectDomains[r.SubjectDomain]; ok {
		return d
	}
	return "other"
}

func normalizeEnum(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(v)
}
