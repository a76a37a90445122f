// Command coursegen generates a course outline from a request file and
// optionally answers follow-up questions about it.
//
//	coursegen -config config.yaml -request course.yaml -ask "Why is module 2 here?"
//	coursegen -config config.yaml -ingest syllabus.html -doc-id cs101-syllabus
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/config"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/embeddings"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/logging"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/query"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/registry"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/vectordb"
)

type questions []string

func (q *questions) String() string     { return strings.Join(*q, "; ") }
func (q *questions) Set(v string) error { *q = append(*q, v); return nil }

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("CURRICULUM_CONFIG"), "path to config file (yaml)")
		requestPath = flag.String("request", "", "course request file (yaml or json)")
		ingestPath  = flag.String("ingest", "", "document to add to the knowledge base (.txt, .md or .html)")
		docID       = flag.String("doc-id", "", "document id for -ingest (defaults to the file name)")
	)
	var asks questions
	flag.Var(&asks, "ask", "follow-up question about the generated outline (repeatable)")
	flag.Parse()

	if err := run(*configPath, *requestPath, *ingestPath, *docID, asks); err != nil {
		fmt.Fprintln(os.Stderr, "coursegen:", err)
		os.Exit(1)
	}
}

func run(configPath, requestPath, ingestPath, docID string, asks []string) error {
	if requestPath == "" && ingestPath == "" {
		return fmt.Errorf("one of -request or -ingest is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(cfg, logger)
	if err := reg.Init(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer reg.Reset()

	if ingestPath != "" {
		n, err := ingest(ctx, reg.VectorStore(), ingestPath, docID, logger)
		if err != nil {
			return err
		}
		fmt.Printf("ingested %s: %d chunks\n", ingestPath, n)
		if requestPath == "" {
			return nil
		}
	}

	req, err := loadRequest(requestPath)
	if err != nil {
		return err
	}
	orch, err := reg.Orchestrator()
	if err != nil {
		return err
	}
	res, err := orch.Execute(ctx, req)
	if err != nil {
		return err
	}
	if err := printJSON(res.Outline); err != nil {
		return err
	}
	if len(asks) == 0 {
		return nil
	}

	classifier, err := query.LoadClassifier(cfg.Query.RulesFile)
	if err != nil {
		return err
	}
	guard, err := query.NewSafetyGuard(ctx, logger)
	if err != nil {
		return err
	}
	engine := query.NewEngine(classifier, guard, logger)
	qc := session.FromRun(res.Session, res.Outline)
	for _, q := range asks {
		resp := engine.Process(ctx, q, qc)
		fmt.Printf("\nQ: %s\n[%s/%s] %s\n", q, resp.Intent, resp.Status, resp.Response)
	}
	return nil
}

// newLogger keeps the configured file rotation but sends console output to
// stderr, so stdout carries only results, and logs warnings and above.
func newLogger(cfg logging.Config) (*zap.Logger, error) {
	cfg.Output = "stderr"
	logger, level, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}
	logging.RaiseLevel(level, zapcore.WarnLevel)
	return logger, nil
}

func loadRequest(path string) (models.CourseRequest, error) {
	var req models.CourseRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}
	// yaml.v3 also reads JSON documents.
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	return req, nil
}

func ingest(ctx context.Context, store vectordb.Writer, path, docID string, logger *zap.Logger) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := string(data)
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" {
		text, err = md.NewConverter("", true, nil).ConvertString(text)
		if err != nil {
			return 0, fmt.Errorf("convert %s: %w", path, err)
		}
	}
	base := filepath.Base(path)
	if docID == "" {
		docID = strings.TrimSuffix(base, ext)
	}
	meta := map[string]interface{}{"title": base, "source": path}
	chunker := embeddings.NewChunker(embeddings.DefaultChunkingConfig())
	return vectordb.Ingest(ctx, store, chunker, docID, text, meta, logger)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
