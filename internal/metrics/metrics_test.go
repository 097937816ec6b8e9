package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()
	m.RecordTurn("senior", "anthropic", 120)
	m.RecordTurn("senior", "anthropic", 30)
	m.RecordTurn("junior", "ollama", 0)
	m.RecordAttempt("anthropic", "transient", 200*time.Millisecond)
	m.RecordAttempt("anthropic", "ok", time.Second)
	m.RecordConversation("agreed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Turns.WithLabelValues("senior", "anthropic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("junior", "ollama")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.Tokens.WithLabelValues("senior")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("anthropic", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conversations.WithLabelValues("agreed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderCall))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordTurn("senior", "x", 1)
	m.RecordAttempt("x", "ok", time.Second)
	m.RecordConversation("aborted")
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordConversation("rounds_exhausted")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tandem_conversations_total{outcome="rounds_exhausted"} 1`))
}
