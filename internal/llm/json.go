package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/util"
)

// ParseError is returned when no JSON object could be recovered from a response.
type ParseError struct {
	Snippet string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Unable to extract valid JSON from LLM response: %s...", e.Snippet)
}

// candidates lists the substrings tried in order: the whole response, a
// ```json fence, a bare fence, then the outermost braces.
func candidates(response string) []string {
	response = strings.TrimSpace(response)
	out := []string{response}
	if i := strings.Index(response, "```json"); i >= 0 {
		start := i + len("```json")
		if end := strings.Index(response[start:], "```"); end > 0 {
			out = append(out, strings.TrimSpace(response[start:start+end]))
		}
	}
	if i := strings.Index(response, "```"); i >= 0 {
		start := i + 3
		if end := strings.Index(response[start:], "```"); end > 0 {
			out = append(out, strings.TrimSpace(response[start:start+end]))
		}
	}
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		out = append(out, response[start:end+1])
	}
	return out
}

// ExtractJSON returns the first candidate that is a valid JSON object.
func ExtractJSON(response string) (json.RawMessage, error) {
	for _, c := range candidates(response) {
		var probe map[string]json.RawMessage
		if json.Unmarshal([]byte(c), &probe) == nil {
			return json.RawMessage(c), nil
		}
	}
	return nil, &ParseError{Snippet: util.Prefix(strings.TrimSpace(response), 200)}
}

// ParseJSON extracts a JSON object from response and decodes it into v.
func ParseJSON(response string, v interface{}) error {
	raw, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode llm json: %w", err)
	}
	return nil
}
