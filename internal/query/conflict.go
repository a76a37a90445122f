package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/util"
)

const levelWords = `(pro[ _-]expert|expert|mixed[ _-]level|beginner|intermediate|advanced)`

// A level only counts when it is phrased as the course's audience.
var audiencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bfor\s+(?:an?\s+|the\s+)?` + levelWords + `s?\s+(?:audience|learners|students|level)\b`),
	regexp.MustCompile(`\b` + levelWords + `[\s-]+(?:level|audience)\b`),
	regexp.MustCompile(`\b` + levelWords + `\s+(?:learners|students)\b`),
	regexp.MustCompile(`\b(?:make\s+it|make\s+the\s+course|aim(?:ed)?\s+(?:it\s+)?at|switch\s+(?:the\s+course\s+)?to|(?:audience|level)\s+to)\s+(?:an?\s+)?` + levelWords + `\b`),
}

var levelByWord = map[string]string{
	"pro_expert":   models.LevelProExpert,
	"expert":       models.LevelProExpert,
	"mixed_level":  models.LevelMixed,
	"beginner":     models.LevelBeginner,
	"intermediate": models.LevelIntermediate,
	"advanced":     models.LevelAdvanced,
}

var levelKey = strings.NewReplacer(" ", "_", "-", "_")

const hourUnit = `(\d+)\s*(?:hours?|hrs?|h)\b`

var addPattern = regexp.MustCompile(`\badd\b`)

// "course to 30 hours", "total of 30 hours"
var totalHoursPattern = regexp.MustCompile(`\b(?:course|total|overall|duration|length)\s+(?:down\s+)?(?:to|of|at)\s+` + hourUnit)

// "a 30-hour course"
var courseHoursPattern = regexp.MustCompile(`\b(\d+)[\s-]*(?:hours?|hrs?|h)\s+(?:course|total|overall)\b`)

// "reduce it to 30 hours"; the gap must not name a part of the course.
var reduceToPattern = regexp.MustCompile(`\b(?:reduce|shorten|cut|trim|bring)\b([^.;]*?)\bto\s+` + hourUnit)

var durationCutPattern = regexp.MustCompile(`\b(?:reduce|shorten|cut|trim)\s+(?:down\s+)?(?:the\s+)?(?:course|duration|total|overall|length|time|hours)\b|\bshorter\s+(?:course|duration)\b|\b(?:course|it)\s+shorter\b|\bless\s+time\b|\bfewer\s+hours\b`)

var courseParts = []string{"module", "lesson", "lab", "unit", "section", "exercise", "project"}

// ProposedChange is what a hard-refinement request asks for.
type ProposedChange struct {
	AudienceLevel     string
	AddContent        bool
	NewDurationHours  int
	DurationReduction bool
}

// ParseProposedChange reads the audience level, add intent and new total
// duration out of text. Hour counts attached to a module or lesson are not
// a course duration. currentHours decides whether a new total is a
// reduction.
func ParseProposedChange(text string, currentHours int) ProposedChange {
	lower := strings.ToLower(text)
	var pc ProposedChange

	best := -1
	for _, re := range audiencePatterns {
		if m := re.FindStringSubmatchIndex(lower); m != nil && (best < 0 || m[0] < best) {
			best = m[0]
			pc.AudienceLevel = levelByWord[levelKey.Replace(lower[m[2]:m[3]])]
		}
	}

	pc.AddContent = addPattern.MatchString(lower)
	pc.NewDurationHours = totalHours(lower)
	pc.DurationReduction = (pc.NewDurationHours > 0 && pc.NewDurationHours < currentHours) ||
		durationCutPattern.MatchString(lower)
	return pc
}

func totalHours(lower string) int {
	for _, re := range []*regexp.Regexp{totalHoursPattern, courseHoursPattern} {
		if m := re.FindStringSubmatch(lower); m != nil {
			n, _ := strconv.Atoi(m[1])
			return n
		}
	}
	if m := reduceToPattern.FindStringSubmatch(lower); m != nil && !util.ContainsAny(m[1], courseParts...) {
		n, _ := strconv.Atoi(m[2])
		return n
	}
	return 0
}

// ConflictDetector checks a proposed change against the current request.
// It knows two contradictions: a different audience level, and adding
// content while shrinking the duration.
type ConflictDetector struct{}

// Detect returns a clarification question when the change conflicts.
func (ConflictDetector) Detect(pc ProposedChange, req models.CourseRequest) (bool, string) {
	if pc.AudienceLevel != "" && pc.AudienceLevel != req.AudienceLevel {
		return true, fmt.Sprintf("You're proposing to change from %s to %s level. This will significantly alter the course. Continue?",
			req.AudienceLevel, pc.AudienceLevel)
	}
	if pc.AddContent && pc.DurationReduction {
		target := "a shorter duration"
		if pc.NewDurationHours > 0 {
			target = fmt.Sprintf("%dh", pc.NewDurationHours)
		}
		return true, fmt.Sprintf("You want to add content but reduce duration from %dh to %s. Which should take priority?",
			req.DurationHours, target)
	}
	return false, ""
}
