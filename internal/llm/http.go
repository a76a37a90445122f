package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/tracing"
)

// HTTPClient talks to an llm-service exposing POST /agent/query.
type HTTPClient struct {
	base    string
	model   string
	agentID string
	httpw   *circuitbreaker.HTTPWrapper
}

func NewHTTPClient(baseURL, model string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "http://llm-service:8000"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: timeout}
	return &HTTPClient{
		base:    strings.TrimRight(baseURL, "/"),
		model:   model,
		agentID: "curriculum_synthesizer",
		httpw:   circuitbreaker.NewHTTPWrapper(client, "llm-service", "llm", logger),
	}
}

func (h *HTTPClient) Generate(ctx context.Context, req Request) (*Response, error) {
	reqBody := map[string]interface{}{
		"query": req.Prompt,
		"context": map[string]interface{}{
			"max_tokens":  req.MaxTokens,
			"temperature": req.Temperature,
			"model":       h.model,
		},
		"agent_id": h.agentID,
	}
	if req.System != "" {
		reqBody["session_context"] = map[string]interface{}{"system_prompt": req.System}
	}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := h.base + "/agent/query"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Agent-ID", h.agentID)
	tracing.InjectTraceparent(ctx, httpReq)

	resp, err := h.httpw.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("LLM service call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from LLM service", resp.StatusCode)
	}

	var result struct {
		Success    bool   `json:"success"`
		Response   string `json:"response"`
		TokensUsed int    `json:"tokens_used"`
		ModelUsed  string `json:"model_used"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("LLM service returned success=false")
	}
	if strings.TrimSpace(result.Response) == "" {
		return nil, ErrEmptyResponse
	}
	model := result.ModelUsed
	if model == "" {
		model = h.model
	}
	return &Response{Content: result.Response, Model: model, Provider: ProviderHTTP, TokensUsed: result.TokensUsed}, nil
}
