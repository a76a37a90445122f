package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/config"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/ratecontrol"
)

// NewClient builds the configured backend wrapped with rate limiting,
// tracing and metrics.
func NewClient(ctx context.Context, cfg config.LLMConfig, limiters *ratecontrol.Limiters, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	var (
		backend Client
		err     error
	)
	switch provider {
	case ProviderAnthropic:
		backend, err = NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.APIBase)
	case ProviderGemini:
		backend, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	case ProviderHTTP, "":
		provider = ProviderHTTP
		backend = NewHTTPClient(cfg.APIBase, cfg.Model, cfg.Timeout(), logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("LLM client configured",
		zap.String("provider", provider),
		zap.String("model", cfg.Model))
	return Wrap(backend, provider, cfg, limiters, logger), nil
}

// Wrap instruments an arbitrary backend the same way NewClient does.
func Wrap(backend Client, provider string, cfg config.LLMConfig, limiters *ratecontrol.Limiters, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumented{
		next:     backend,
		provider: provider,
		defaults: Request{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		timeout:  cfg.Timeout(),
		limiters: limiters,
		logger:   logger,
	}
}
