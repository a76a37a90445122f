package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/config"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/ratecontrol"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantKey  string
	}{
		{"direct", `{"summary":"ok"}`, "summary"},
		{"json fence", "Here you go:\n```json\n{\"topics\":[\"a\"]}\n```\nThanks", "topics"},
		{"bare fence", "```\n{\"skills\":[]}\n```", "skills"},
		{"embedded braces", "The answer is {\"modules\": [{\"title\": \"x\"}]} as requested.", "modules"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ExtractJSON(tt.response)
			require.NoError(t, err)
			var m map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &m))
			assert.Contains(t, m, tt.wantKey)
		})
	}
}

func TestExtractJSONFailure(t *testing.T) {
	long := strings.Repeat("x", 300)
	_, err := ExtractJSON(long)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Len(t, pe.Snippet, 200)
	assert.True(t, strings.HasPrefix(err.Error(), "Unable to extract valid JSON from LLM response: "))
	assert.True(t, strings.HasSuffix(err.Error(), "..."))
}

func TestParseJSON(t *testing.T) {
	var out struct {
		Summary string   `json:"summary"`
		Topics  []string `json:"topics"`
	}
	require.NoError(t, ParseJSON("```json\n{\"summary\":\"s\",\"topics\":[\"t1\",\"t2\"]}\n```", &out))
	assert.Equal(t, "s", out.Summary)
	assert.Equal(t, []string{"t1", "t2"}, out.Topics)
}

func TestHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent/query", r.URL.Path)
		assert.Equal(t, "curriculum_synthesizer", r.Header.Get("X-Agent-ID"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["query"])
		sc, _ := body["session_context"].(map[string]interface{})
		assert.Equal(t, "be brief", sc["system_prompt"])
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "response": "hi", "tokens_used": 3})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "gpt-4-turbo", 0, zaptest.NewLogger(t))
	resp, err := c.Generate(context.Background(), Request{Prompt: "hello", System: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, "gpt-4-turbo", resp.Model)
	assert.Equal(t, 3, resp.TokensUsed)
}

func TestHTTPClientFailures(t *testing.T) {
	unsuccessful := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
	}))
	defer unsuccessful.Close()
	_, err := NewHTTPClient(unsuccessful.URL, "m", 0, nil).Generate(context.Background(), Request{Prompt: "x"})
	assert.EqualError(t, err, "LLM service returned success=false")

	rejected := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer rejected.Close()
	_, err = NewHTTPClient(rejected.URL, "m", 0, nil).Generate(context.Background(), Request{Prompt: "x"})
	assert.EqualError(t, err, "HTTP 400 from LLM service")
}

func TestWrapAppliesDefaults(t *testing.T) {
	var got Request
	backend := ClientFunc(func(_ context.Context, req Request) (*Response, error) {
		got = req
		return &Response{Content: "ok", Model: "fake"}, nil
	})
	c := Wrap(backend, "fake", config.LLMConfig{Temperature: 0.4, MaxTokens: 900}, ratecontrol.New(nil), zaptest.NewLogger(t))

	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, 0.4, got.Temperature)
	assert.Equal(t, 900, got.MaxTokens)

	_, err = c.Generate(context.Background(), Request{Prompt: "p", Temperature: 0.1, MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, 0.1, got.Temperature)
	assert.Equal(t, 10, got.MaxTokens)
}

func TestWrapPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	c := Wrap(ClientFunc(func(context.Context, Request) (*Response, error) { return nil, boom }), "fake", config.LLMConfig{}, nil, nil)
	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, boom)
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), config.LLMConfig{Provider: "nope"}, nil, nil)
	assert.Error(t, err)

	_, err = NewClient(context.Background(), config.LLMConfig{Provider: "anthropic"}, nil, nil)
	assert.Error(t, err, "missing api key")

	c, err := NewClient(context.Background(), config.LLMConfig{Provider: "http", APIBase: "http://localhost:1"}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}
