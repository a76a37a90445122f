// Package orchestrator runs the generation pipeline: two enrichment stages
// in parallel, then synthesis.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
)

const (
	stageRetrieval = "retrieval"
	stageWeb       = "web_search"
	stageSynthesis = "synthesis"

	defaultStageTimeout = 45 * time.Second
)

// Retriever is the knowledge-retrieval stage.
type Retriever interface {
	Run(ctx context.Context, sc *session.Context) *models.RetrievalResult
}

// WebResearcher is the web-search stage.
type WebResearcher interface {
	Run(ctx context.Context, sc *session.Context) *models.WebFindings
}

// Synthesizer produces the outline from the enriched context.
type Synthesizer interface {
	Run(ctx context.Context, sc *session.Context) (*models.Outline, error)
}

// Options tune the pipeline.
type Options struct {
	StageTimeout time.Duration
	RunTimeout   time.Duration
}

// Result is a finished run: its context and the outline.
type Result struct {
	Session *session.Context
	Outline *models.Outline
}

type Orchestrator struct {
	retriever   Retriever
	web         WebResearcher
	synthesizer Synthesizer
	opts        Options
	logger      *zap.Logger
}

// New builds an orchestrator. A nil retriever or web researcher leaves that
// slot absent on every run.
func New(retriever Retriever, web WebResearcher, synthesizer Synthesizer, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = defaultStageTimeout
	}
	return &Orchestrator{retriever: retriever, web: web, synthesizer: synthesizer, opts: opts, logger: logger}
}

// Run generates an outline for req.
func (o *Orchestrator) Run(ctx context.Context, req models.CourseRequest) (*models.Outline, error) {
	res, err := o.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Outline, nil
}

// Execute is Run but also returns the run context, so callers can open a
// query session over it.
func (o *Orchestrator) Execute(ctx context.Context, req models.CourseRequest) (*Result, error) {
	start := time.Now()

	req.Normalize()
	if err := req.Validate(); err != nil {
		verr := newValidationError(err)
		o.logger.Warn("Rejected course request", zap.Error(verr))
		metrics.RecordRunMetrics("invalid", time.Since(start).Seconds())
		return nil, verr
	}

	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	sc := session.NewContext(req)
	logger := o.logger.With(zap.String("run_id", sc.RunID()))
	logger.Info("Starting curriculum run",
		zap.String("course_title", req.CourseTitle),
		zap.Int("duration_hours", req.DurationHours))

	// Stages never return errors, so the group never cancels its context.
	var g errgroup.Group
	g.Go(func() error {
		o.retrievalStage(ctx, sc, logger)
		return nil
	})
	g.Go(func() error {
		o.webStage(ctx, sc, logger)
		return nil
	})
	_ = g.Wait()

	outline, err := o.synthesisStage(ctx, sc, logger)
	if err != nil {
		metrics.RecordRunMetrics("failed", time.Since(start).Seconds())
		return nil, &SynthesisError{RunID: sc.RunID(), Err: err}
	}

	metrics.RecordRunMetrics("success", time.Since(start).Seconds())
	logger.Info("Curriculum run completed",
		zap.Int("modules", len(outline.Modules)),
		zap.Float64("confidence", outline.Confidence),
		zap.Duration("duration", time.Since(start)),
		zap.Any("absent_stages", sc.AbsentReasons()))
	return &Result{Session: sc, Outline: outline}, nil
}

func (o *Orchestrator) retrievalStage(ctx context.Context, sc *session.Context, logger *zap.Logger) {
	if o.retriever == nil {
		_ = sc.MarkRetrievalAbsent("retrieval not configured")
		return
	}
	var result *models.RetrievalResult
	err := o.guard(ctx, stageRetrieval, logger, func(ctx context.Context) {
		result = o.retriever.Run(ctx, sc)
	})
	if err == nil && result == nil {
		err = fmt.Errorf("retrieval returned no result")
	}
	if err != nil {
		logger.Warn("Retrieval stage failed, continuing without it", zap.Error(err))
		_ = sc.MarkRetrievalAbsent(err.Error())
		return
	}
	_ = sc.SetRetrieval(result)
	metrics.StageConfidence.WithLabelValues(stageRetrieval).Observe(result.Confidence)
	logger.Info("Stage completed",
		zap.String("stage", stageRetrieval),
		zap.Int("chunks", result.ReturnedCount),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("duration", result.ExecutionTime))
}

func (o *Orchestrator) webStage(ctx context.Context, sc *session.Context, logger *zap.Logger) {
	if o.web == nil {
		_ = sc.MarkWebFindingsAbsent("web search not configured")
		return
	}
	var findings *models.WebFindings
	err := o.guard(ctx, stageWeb, logger, func(ctx context.Context) {
		findings = o.web.Run(ctx, sc)
	})
	if err == nil && findings == nil {
		err = fmt.Errorf("web search returned no findings")
	}
	if err != nil {
		logger.Warn("Web search stage failed, continuing without it", zap.Error(err))
		_ = sc.MarkWebFindingsAbsent(err.Error())
		return
	}
	_ = sc.SetWebFindings(findings)
	metrics.StageConfidence.WithLabelValues(stageWeb).Observe(findings.Confidence)
	logger.Info("Stage completed",
		zap.String("stage", stageWeb),
		zap.Int("results", findings.ResultCount),
		zap.String("provider", findings.ProviderUsed),
		zap.Float64("confidence", findings.Confidence),
		zap.Duration("duration", findings.ExecutionTime))
}

func (o *Orchestrator) synthesisStage(ctx context.Context, sc *session.Context, logger *zap.Logger) (*models.Outline, error) {
	if o.synthesizer == nil {
		return nil, fmt.Errorf("synthesizer not configured")
	}
	start := time.Now()
	var (
		outline *models.Outline
		err     error
	)
	if perr := o.protect(func() { outline, err = o.synthesizer.Run(ctx, sc) }); perr != nil {
		err = perr
	}
	if err == nil && outline == nil {
		err = fmt.Errorf("synthesizer returned no outline")
	}
	if err == nil {
		if verr := outline.Validate(); verr != nil {
			err = fmt.Errorf("outline failed validation: %w", verr)
		}
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	conf := 0.0
	if outline != nil {
		conf = outline.Confidence
	}
	metrics.RecordStageMetrics(stageSynthesis, status, time.Since(start).Seconds(), conf)
	if err != nil {
		logger.Error("Synthesis stage failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, err
	}
	logger.Info("Stage completed",
		zap.String("stage", stageSynthesis),
		zap.Int("modules", len(outline.Modules)),
		zap.Float64("confidence", outline.Confidence),
		zap.Duration("duration", time.Since(start)))
	return outline, nil
}

// guard runs an enrichment stage under its own deadline and turns panics
// and deadline overruns into errors.
func (o *Orchestrator) guard(ctx context.Context, stage string, logger *zap.Logger, fn func(context.Context)) error {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, o.opts.StageTimeout)
	defer cancel()

	err := o.protect(func() { fn(stageCtx) })
	if err == nil && stageCtx.Err() != nil {
		err = fmt.Errorf("%s stage: %w", stage, stageCtx.Err())
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.StageDuration.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Debug("Stage ended with error", zap.String("stage", stage), zap.Error(err))
	}
	return err
}

func (o *Orchestrator) protect(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Recovered from panic in pipeline stage",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}
