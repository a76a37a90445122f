package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/logging"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/tracing"
)

// Config is the full service configuration.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Logging    logging.Config   `mapstructure:"logging"`
	Tracing    tracing.Config   `mapstructure:"tracing"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Search     SearchConfig     `mapstructure:"search"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Query      QueryConfig      `mapstructure:"query"`
}

type ServiceConfig struct {
	Environment string `mapstructure:"environment"`
	HTTPPort    int    `mapstructure:"http_port"`
	AdminPort   int    `mapstructure:"admin_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// LLMConfig selects and tunes the language generation backend.
type LLMConfig struct {
	Provider       string  `mapstructure:"provider"` // anthropic, gemini, http
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	APIKey         string  `mapstructure:"api_key"`
	APIBase        string  `mapstructure:"api_base"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-call timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type SearchConfig struct {
	TavilyAPIKey   string             `mapstructure:"tavily_api_key"`
	TavilyDepth    string             `mapstructure:"tavily_depth"`
	SerpAPIKey     string             `mapstructure:"serpapi_api_key"`
	MaxPerQuery    int                `mapstructure:"max_per_query"`
	QueryBudget    int                `mapstructure:"query_budget"`
	TimeoutSeconds int                `mapstructure:"timeout_seconds"`
	RateLimits     map[string]float64 `mapstructure:"rate_limits"` // requests per second per provider
}

type VectorConfig struct {
	Backend        string  `mapstructure:"backend"` // qdrant, pgvector, memory
	QdrantURL      string  `mapstructure:"qdrant_url"`
	Collection     string  `mapstructure:"collection"`
	Threshold      float64 `mapstructure:"threshold"`
	PostgresDSN    string  `mapstructure:"postgres_dsn"`
	PostgresTable  string  `mapstructure:"postgres_table"`
	SeedFile       string  `mapstructure:"seed_file"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

type EmbeddingsConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	CacheSize      int    `mapstructure:"cache_size"`
	CacheTTL       string `mapstructure:"cache_ttl"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
}

type PipelineConfig struct {
	StageTimeout string `mapstructure:"stage_timeout"`
	RunTimeout   string `mapstructure:"run_timeout"`
}

type SessionsConfig struct {
	TTL     string `mapstructure:"ttl"`
	Cleanup string `mapstructure:"cleanup"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type QueryConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// Default models per provider, used when llm.model is empty.
var defaultModels = map[string]string{
	"anthropic": "claude-3-opus-20240229",
	"gemini":    "gemini-pro",
	"http":      "gpt-4-turbo",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.http_port", 8080)
	v.SetDefault("service.admin_port", 8081)
	v.SetDefault("service.metrics_port", 2112)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "curriculum-orchestrator")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.api_base", "")
	v.SetDefault("llm.timeout_seconds", 30)

	v.SetDefault("search.tavily_api_key", "")
	v.SetDefault("search.tavily_depth", "basic")
	v.SetDefault("search.serpapi_api_key", "")
	v.SetDefault("search.max_per_query", 5)
	v.SetDefault("search.query_budget", 3)
	v.SetDefault("search.timeout_seconds", 15)
	v.SetDefault("search.rate_limits", map[string]float64{"tavily": 5, "duckduckgo": 1, "serpapi": 2})

	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.qdrant_url", "http://localhost:6333")
	v.SetDefault("vector.collection", "curriculum_knowledge")
	v.SetDefault("vector.threshold", 0.0)
	v.SetDefault("vector.postgres_dsn", "")
	v.SetDefault("vector.postgres_table", "knowledge_chunks")
	v.SetDefault("vector.seed_file", "")
	v.SetDefault("vector.timeout_seconds", 5)

	v.SetDefault("embeddings.base_url", "http://localhost:8000")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.timeout_seconds", 5)
	v.SetDefault("embeddings.cache_size", 2048)
	v.SetDefault("embeddings.cache_ttl", "1h")
	v.SetDefault("embeddings.redis_addr", "")
	v.SetDefault("embeddings.redis_password", "")

	v.SetDefault("pipeline.stage_timeout", "45s")
	v.SetDefault("pipeline.run_timeout", "3m")

	v.SetDefault("sessions.ttl", "1h")
	v.SetDefault("sessions.cleanup", "10m")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "curriculum")

	v.SetDefault("query.rules_file", "")
}

// Load reads configuration from path (optional), a local .env file and the
// environment. CURRICULUM_<SECTION>_<KEY> overrides any file value; the
// conventional provider variables (LLM_PROVIDER, TAVILY_API_KEY, ...) fill
// fields the file leaves empty.
func Load(path string) (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CURRICULUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnvFallbacks(&cfg)

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModels[cfg.LLM.Provider]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvFallbacks(cfg *Config) {
	setIfEmpty(&cfg.Search.TavilyAPIKey, "TAVILY_API_KEY")
	setIfEmpty(&cfg.Search.SerpAPIKey, "SERPAPI_API_KEY")
	setIfEmpty(&cfg.Embeddings.RedisPassword, "REDIS_PASSWORD")
	setIfEmpty(&cfg.Auth.JWTSecret, "JWT_SECRET")

	if p := os.Getenv("LLM_PROVIDER"); p != "" {
		cfg.LLM.Provider = strings.ToLower(p)
	}
	setIfEmpty(&cfg.LLM.Model, "LLM_MODEL")
	setIfEmpty(&cfg.LLM.APIKey, "LLM_API_KEY")
	setIfEmpty(&cfg.LLM.APIBase, "LLM_API_BASE")
	switch cfg.LLM.Provider {
	case "anthropic":
		setIfEmpty(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	case "gemini":
		setIfEmpty(&cfg.LLM.APIKey, "GEMINI_API_KEY")
		setIfEmpty(&cfg.LLM.APIKey, "GOOGLE_API_KEY")
	}
	if t := os.Getenv("LLM_TEMPERATURE"); t != "" {
		var x float64
		if _, err := fmt.Sscanf(t, "%f", &x); err == nil {
			cfg.LLM.Temperature = x
		}
	}
	if m := os.Getenv("LLM_MAX_TOKENS"); m != "" {
		var x int
		if _, err := fmt.Sscanf(m, "%d", &x); err == nil && x > 0 {
			cfg.LLM.MaxTokens = x
		}
	}
	if s := os.Getenv("LLM_TIMEOUT"); s != "" {
		var x int
		if _, err := fmt.Sscanf(s, "%d", &x); err == nil && x > 0 {
			cfg.LLM.TimeoutSeconds = x
		}
	}
	if p := os.Getenv("METRICS_PORT"); p != "" {
		var x int
		if _, err := fmt.Sscanf(p, "%d", &x); err == nil && x > 0 {
			cfg.Service.MetricsPort = x
		}
	}
}

func setIfEmpty(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}

// Validate checks cross-field constraints the defaults cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "anthropic", "gemini", "http":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unsupported provider %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature: %v out of range [0,2]", c.LLM.Temperature))
	}
	switch c.Vector.Backend {
	case "qdrant", "memory":
	case "pgvector":
		if c.Vector.PostgresDSN == "" {
			errs = append(errs, errors.New("vector.postgres_dsn: required for pgvector backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("vector.backend: unsupported backend %q", c.Vector.Backend))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret: required when auth is enabled"))
	}
	for _, d := range []struct{ key, val string }{
		{"pipeline.stage_timeout", c.Pipeline.StageTimeout},
		{"pipeline.run_timeout", c.Pipeline.RunTimeout},
		{"sessions.ttl", c.Sessions.TTL},
		{"sessions.cleanup", c.Sessions.Cleanup},
		{"embeddings.cache_ttl", c.Embeddings.CacheTTL},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
		}
	}
	return errors.Join(errs...)
}

// Duration parses a validated duration field; invalid values return def.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
