package models

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOutline() *Outline {
	return &Outline{
		CourseTitle: "Intro to Go",
		Modules: []Module{
			{ID: "M_1", Title: "Basics", Lessons: []Lesson{{Title: "Syntax", KeyConcepts: []string{"types"}}}},
			{ID: "U_2", Title: "Concurrency"},
		},
	}
}

func TestFindModule(t *testing.T) {
	o := sampleOutline()

	m, ok := o.FindModule("M_1")
	require.True(t, ok)
	assert.Equal(t, "Basics", m.Title)

	m, ok = o.FindModule("M_2")
	require.True(t, ok, "numeric suffix should resolve across prefixes")
	assert.Equal(t, "Concurrency", m.Title)

	_, ok = o.FindModule("M_9")
	assert.False(t, ok)

	var nilOutline *Outline
	_, ok = nilOutline.FindModule("M_1")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	o := sampleOutline()
	c := o.Clone()
	c.Modules[0].Title = "changed"
	c.Modules[0].Lessons[0].KeyConcepts[0] = "changed"
	c.Modules = append(c.Modules, Module{ID: "M_3"})

	assert.Equal(t, "Basics", o.Modules[0].Title)
	assert.Equal(t, "types", o.Modules[0].Lessons[0].KeyConcepts[0])
	assert.Len(t, o.Modules, 2)
}

func TestNormalizeAndDomain(t *testing.T) {
	r := CourseRequest{
		CourseTitle:   "  Intro to Go ",
		AudienceLevel: "Beginner",
		LearningMode:  "Practical Hands-On",
		SubjectDomain: "Engineering",
	}
	r.Normalize()
	assert.Equal(t, "Intro to Go", r.CourseTitle)
	assert.Equal(t, LevelBeginner, r.AudienceLevel)
	assert.Equal(t, "practical_hands_on", r.LearningMode)
	assert.Equal(t, "technical", r.Domain())

	r.SubjectDomain = "astrology"
	assert.Equal(t, "other", r.Domain())
	r.SubjectDomain = ""
	assert.Equal(t, "", r.Domain())
}

func validRequest() CourseRequest {
	return CourseRequest{
		CourseTitle:       "Python Basics",
		CourseDescription: "Learn Python fundamentals from scratch.",
		AudienceLevel:     "beginner",
		AudienceCategory:  "college_students",
		LearningMode:      "practical_hands_on",
		DepthRequirement:  "introductory",
		DurationHours:     20,
	}
}

func TestRequestValidate(t *testing.T) {
	r := validRequest()
	assert.NoError(t, r.Validate())

	r.AudienceLevel = "guru"
	r.DurationHours = 0
	err := r.Validate()
	require.Error(t, err)
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := map[string]bool{}
	for _, fe := range verrs {
		fields[fe.Field()] = true
	}
	assert.True(t, fields["AudienceLevel"])
	assert.True(t, fields["DurationHours"])
}

func TestOutlineValidate(t *testing.T) {
	o := &Outline{CourseTitle: "T", Modules: []Module{{ID: "M_1", Title: "Intro",
		Objectives: []Objective{{Statement: "s", BloomLevel: "apply"}}}}}
	assert.NoError(t, o.Validate())

	o.Modules[0].Objectives[0].BloomLevel = "memorize"
	assert.Error(t, o.Validate())

	assert.Error(t, (&Outline{CourseTitle: "T"}).Validate())
}
