// Package llm provides the language generation backends used for synthesis.
package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	ometrics "github.com/Kocoro-lab/Shannon/go/curriculum/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/ratecontrol"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/tracing"
)

// Provider names accepted by NewClient.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderHTTP      = "http"
)

// ErrEmptyResponse is returned when a backend produced no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Request is one generation call.
type Request struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

// Response is the generated text plus accounting.
type Response struct {
	Content    string
	Model      string
	Provider   string
	TokensUsed int
}

// Client generates text from a prompt.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

func (f ClientFunc) Generate(ctx context.Context, req Request) (*Response, error) { return f(ctx, req) }

// instrumented applies rate limiting, defaults, tracing and metrics around a backend.
type instrumented struct {
	next     Client
	provider string
	defaults Request
	timeout  time.Duration
	limiters *ratecontrol.Limiters
	logger   *zap.Logger
}

func (c *instrumented) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Temperature == 0 {
		req.Temperature = c.defaults.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.defaults.MaxTokens
	}
	if err := c.limiters.Wait(ctx, c.provider); err != nil {
		return nil, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "llm.generate."+c.provider)
	start := time.Now()
	resp, err := c.next.Generate(ctx, req)
	tracing.EndSpan(span, err)
	elapsed := time.Since(start)

	if err != nil {
		ometrics.RecordLLMMetrics(c.provider, "error", elapsed.Seconds())
		c.logger.Warn("LLM call failed",
			zap.String("provider", c.provider),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, err
	}
	ometrics.RecordLLMMetrics(c.provider, "ok", elapsed.Seconds())
	c.logger.Debug("LLM call completed",
		zap.String("provider", c.provider),
		zap.String("model", resp.Model),
		zap.Int("chars", len(resp.Content)),
		zap.Duration("duration", elapsed))
	return resp, nil
}
