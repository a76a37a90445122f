package embeddings

import "time"

// Config controls the embedding service.
type Config struct {
	// BaseURL points to a service exposing POST /embeddings/
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	// CacheTTL applies to both cache tiers
	CacheTTL time.Duration
	// MaxLRU bounds the in-process cache
	MaxLRU int
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "text-embedding-3-small"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.MaxLRU == 0 {
		c.MaxLRU = 2048
	}
	return c
}
