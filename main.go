package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/auth"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/config"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/health"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/logging"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/query"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/registry"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/tracing"
)

func main() {
	configPath := flag.String("config", os.Getenv("CURRICULUM_CONFIG"), "path to config file (yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, level, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing init failed, continuing without traces", zap.Error(err))
	}

	circuitbreaker.StartMetricsCollection(ctx)

	// Health endpoints come up first so probes answer while the rest starts.
	hm := health.NewManager(logger)
	adminMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(adminMux)
	adminServer := newServer(cfg.Service.AdminPort, adminMux)
	go serve(adminServer, "Admin", logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := newServer(cfg.Service.MetricsPort, metricsMux)
	go serve(metricsServer, "Metrics", logger)

	reg := registry.New(cfg, logger)
	if err := reg.Init(ctx); err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer reg.Reset()

	_ = hm.RegisterChecker(health.NewLLMConfigChecker(cfg.LLM))
	_ = hm.RegisterChecker(health.NewVectorStoreChecker(reg.VectorStore()))
	if rc := reg.Redis(); rc != nil {
		_ = hm.RegisterChecker(health.NewRedisChecker(rc))
	}
	if err := hm.Start(ctx, 30*time.Second); err != nil {
		logger.Warn("Health manager start failed", zap.Error(err))
	}

	orch, err := reg.Orchestrator()
	if err != nil {
		logger.Fatal("Failed to build orchestrator", zap.Error(err))
	}
	classifier, err := query.LoadClassifier(cfg.Query.RulesFile)
	if err != nil {
		logger.Fatal("Failed to load query rules", zap.Error(err))
	}
	guard, err := query.NewSafetyGuard(ctx, logger)
	if err != nil {
		logger.Fatal("Failed to compile mutation policy", zap.Error(err))
	}
	engine := query.NewEngine(classifier, guard, logger)
	sessions := session.NewStore(
		config.Duration(cfg.Sessions.TTL, time.Hour),
		config.Duration(cfg.Sessions.Cleanup, 10*time.Minute),
		logger,
	)

	// Log level and query rules follow the config file; everything else
	// needs a restart.
	if err := config.Watch(*configPath, logger, func(next *config.Config) {
		if err := logging.SetLevel(level, next.Logging.Level); err != nil {
			logger.Warn("Ignoring invalid log level", zap.String("level", next.Logging.Level))
		}
		if next.Query.RulesFile == "" {
			return
		}
		if err := classifier.Reload(next.Query.RulesFile); err != nil {
			logger.Warn("Query rules reload failed", zap.Error(err))
			return
		}
		logger.Info("Query rules reloaded", zap.Int("rules", len(classifier.Rules())))
	}); err != nil {
		logger.Warn("Config watch disabled", zap.Error(err))
	}

	apiMux := http.NewServeMux()
	httpapi.NewServer(orch, engine, sessions, logger).RegisterRoutes(apiMux)
	var handler http.Handler = apiMux
	if cfg.Auth.Enabled {
		jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Hour)
		handler = auth.NewMiddleware(jwtMgr, false, logger).HTTPMiddleware(apiMux)
		logger.Info("API authentication enabled", zap.String("issuer", cfg.Auth.Issuer))
	}
	apiServer := newServer(cfg.Service.HTTPPort, handler)
	apiServer.WriteTimeout = config.Duration(cfg.Pipeline.RunTimeout, 3*time.Minute) + 15*time.Second
	go serve(apiServer, "API", logger)

	logger.Info("Curriculum service started",
		zap.String("environment", cfg.Service.Environment),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("vector_backend", cfg.Vector.Backend))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	for _, s := range []*http.Server{apiServer, adminServer, metricsServer} {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error", zap.String("addr", s.Addr), zap.Error(err))
		}
	}
	hm.Stop()
	if shutdownTracing != nil {
		_ = shutdownTracing(shutdownCtx)
	}
}

func newServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func serve(s *http.Server, name string, logger *zap.Logger) {
	logger.Info(name+" HTTP server listening", zap.String("addr", s.Addr))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(name+" HTTP server failed", zap.Error(err))
	}
}
