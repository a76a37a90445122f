package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDisabledTracingIsSafe(t *testing.T) {
	shutdown, err := Initialize(Config{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer shutdown(context.Background())

	ctx, span := StartHTTPSpan(context.Background(), http.MethodPost, "https://api.tavily.com/search")
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.tavily.com/search", nil)
	InjectTraceparent(ctx, req)
	assert.Empty(t, req.Header.Get("traceparent"), "no-op spans carry no trace context")
	EndSpan(span, errors.New("boom"))
}

func TestW3CTraceparentWithoutSpan(t *testing.T) {
	assert.Empty(t, W3CTraceparent(context.Background()))
}
