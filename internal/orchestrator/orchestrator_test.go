package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
)

type retrieverFunc func(context.Context, *session.Context) *models.RetrievalResult

func (f retrieverFunc) Run(ctx context.Context, sc *session.Context) *models.RetrievalResult {
	return f(ctx, sc)
}

type webFunc func(context.Context, *session.Context) *models.WebFindings

func (f webFunc) Run(ctx context.Context, sc *session.Context) *models.WebFindings { return f(ctx, sc) }

type synthFunc func(context.Context, *session.Context) (*models.Outline, error)

func (f synthFunc) Run(ctx context.Context, sc *session.Context) (*models.Outline, error) {
	return f(ctx, sc)
}

func validRequest() models.CourseRequest {
	return models.CourseRequest{
		CourseTitle:       "  Intro to X ",
		CourseDescription: "Intro to X is about Y.",
		AudienceLevel:     "Beginner",
		AudienceCategory:  "undergraduate",
		LearningMode:      "Theory Oriented",
		DepthRequirement:  "conceptual",
		DurationHours:     20,
	}
}

func outlineFrom(sc *session.Context) *models.Outline {
	req := sc.Request()
	return &models.Outline{
		CourseTitle: req.CourseTitle,
		Modules:     []models.Module{{ID: "M_1", Title: "Basics"}},
		Confidence:  0.75,
	}
}

func okRetriever() Retriever {
	return retrieverFunc(func(context.Context, *session.Context) *models.RetrievalResult {
		return &models.RetrievalResult{Confidence: 0.9, ReturnedCount: 1, TotalHits: 1,
			Chunks: []models.RetrievedChunk{{DocumentID: "d1", SimilarityScore: 0.9}}}
	})
}

func okWeb() WebResearcher {
	return webFunc(func(context.Context, *session.Context) *models.WebFindings {
		return &models.WebFindings{Confidence: 0.7, ResultCount: 3}
	})
}

func TestRunSuccess(t *testing.T) {
	var sawRetrieval, sawWeb bool
	synth := synthFunc(func(_ context.Context, sc *session.Context) (*models.Outline, error) {
		r, rs := sc.Retrieval()
		w, ws := sc.WebFindings()
		sawRetrieval = r != nil && rs == session.SlotFilled
		sawWeb = w != nil && ws == session.SlotFilled
		return outlineFrom(sc), nil
	})
	o := New(okRetriever(), okWeb(), synth, Options{}, zaptest.NewLogger(t))

	res, err := o.Execute(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, sawRetrieval)
	assert.True(t, sawWeb)
	assert.Equal(t, "Intro to X", res.Outline.CourseTitle)
	assert.Equal(t, "beginner", res.Session.Request().AudienceLevel)
	assert.Equal(t, "theory_oriented", res.Session.Request().LearningMode)
	assert.NotEmpty(t, res.Session.RunID())
}

func TestRunValidationError(t *testing.T) {
	var called atomic.Bool
	synth := synthFunc(func(context.Context, *session.Context) (*models.Outline, error) {
		called.Store(true)
		return nil, nil
	})
	req := validRequest()
	req.AudienceLevel = "guru"
	req.DurationHours = 0

	_, err := New(okRetriever(), okWeb(), synth, Options{}, zaptest.NewLogger(t)).Run(context.Background(), req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["AudienceLevel"])
	assert.True(t, fields["DurationHours"])
	assert.False(t, called.Load())
}

func TestEnrichmentFailuresAreIsolated(t *testing.T) {
	panicking := retrieverFunc(func(context.Context, *session.Context) *models.RetrievalResult {
		panic("vector store exploded")
	})
	var webRan atomic.Bool
	web := webFunc(func(context.Context, *session.Context) *models.WebFindings {
		webRan.Store(true)
		return &models.WebFindings{Confidence: 0.5}
	})
	var reasons map[string]string
	synth := synthFunc(func(_ context.Context, sc *session.Context) (*models.Outline, error) {
		reasons = sc.AbsentReasons()
		_, ws := sc.WebFindings()
		assert.Equal(t, session.SlotFilled, ws)
		return outlineFrom(sc), nil
	})

	out, err := New(panicking, web, synth, Options{}, zaptest.NewLogger(t)).Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, webRan.Load())
	assert.Contains(t, reasons, "retrieval")
}

func TestStageTimeoutMarksAbsent(t *testing.T) {
	slow := webFunc(func(ctx context.Context, _ *session.Context) *models.WebFindings {
		<-ctx.Done()
		return &models.WebFindings{}
	})
	var state session.SlotState
	synth := synthFunc(func(_ context.Context, sc *session.Context) (*models.Outline, error) {
		_, state = sc.WebFindings()
		return outlineFrom(sc), nil
	})
	o := New(okRetriever(), slow, synth, Options{StageTimeout: 20 * time.Millisecond}, zaptest.NewLogger(t))
	_, err := o.Run(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, session.SlotAbsent, state)
}

func TestStagesRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	wait := func() {
		if started.Add(1) == 2 {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}
	retriever := retrieverFunc(func(context.Context, *session.Context) *models.RetrievalResult {
		wait()
		return &models.RetrievalResult{}
	})
	web := webFunc(func(context.Context, *session.Context) *models.WebFindings {
		wait()
		return &models.WebFindings{}
	})
	synth := synthFunc(func(_ context.Context, sc *session.Context) (*models.Outline, error) {
		return outlineFrom(sc), nil
	})

	start := time.Now()
	_, err := New(retriever, web, synth, Options{}, zaptest.NewLogger(t)).Run(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSynthesisFailure(t *testing.T) {
	boom := errors.New("llm down")
	synth := synthFunc(func(context.Context, *session.Context) (*models.Outline, error) {
		return nil, boom
	})
	out, err := New(okRetriever(), okWeb(), synth, Options{}, zaptest.NewLogger(t)).Run(context.Background(), validRequest())
	assert.Nil(t, out)
	var serr *SynthesisError
	require.ErrorAs(t, err, &serr)
	assert.NotEmpty(t, serr.RunID)
	assert.ErrorIs(t, err, boom)
}

func TestInvalidOutlineIsSynthesisError(t *testing.T) {
	synth := synthFunc(func(context.Context, *session.Context) (*models.Outline, error) {
		return &models.Outline{CourseTitle: "X"}, nil
	})
	_, err := New(nil, nil, synth, Options{}, zaptest.NewLogger(t)).Run(context.Background(), validRequest())
	var serr *SynthesisError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, err.Error(), "outline failed validation")
}
