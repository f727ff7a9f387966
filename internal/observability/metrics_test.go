package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/civic-issue-service/internal/config"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("/api/report", "POST", 201, 15*time.Millisecond)
	m.RecordRequest("/api/report", "POST", 201, 5*time.Millisecond)
	m.RecordError("/api/issues/:id/vote", "POST", "DUPLICATE_VOTE")
	m.RecordIssueEvent("vote_cast")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/report", "POST", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/api/issues/:id/vote", "POST", "DUPLICATE_VOTE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.issues.WithLabelValues("vote_cast")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
		m.RecordIssueEvent("x")
	})
}

func TestNewLoggerFallsBackOnUnknownLevel(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "chatty", Format: "console"}, "civic-test")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
