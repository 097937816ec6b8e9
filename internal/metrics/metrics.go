package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for review conversations. All record
// methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry         *prometheus.Registry
	Turns            *prometheus.CounterVec
	ProviderAttempts *prometheus.CounterVec
	ProviderCall     *prometheus.HistogramVec
	Conversations    *prometheus.CounterVec
	Tokens           *prometheus.CounterVec
}

// New constructs a private registry with the conversation collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	turns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tandem_turns_total",
		Help: "Completed agent turns by agent and provider",
	}, []string{"agent", "provider"})

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tandem_provider_attempts_total",
		Help: "Provider call attempts by provider and result",
	}, []string{"provider", "result"})

	calls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tandem_provider_call_seconds",
		Help:    "Provider call attempt duration in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"provider"})

	convs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tandem_conversations_total",
		Help: "Finished conversations by outcome",
	}, []string{"outcome"})

	tokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tandem_tokens_total",
		Help: "Tokens reported by providers, by agent",
	}, []string{"agent"})

	reg.MustRegister(turns, attempts, calls, convs, tokens)

	return &Metrics{
		registry:         reg,
		Turns:            turns,
		ProviderAttempts: attempts,
		ProviderCall:     calls,
		Conversations:    convs,
		Tokens:           tokens,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTurn counts a completed turn and its token usage.
func (m *Metrics) RecordTurn(agent, provider string, tokens int) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(agent, orUnknown(provider)).Inc()
	if tokens > 0 {
		m.Tokens.WithLabelValues(agent).Add(float64(tokens))
	}
}

// RecordAttempt records one provider attempt and how long it took.
func (m *Metrics) RecordAttempt(provider, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	provider = orUnknown(provider)
	m.ProviderAttempts.WithLabelValues(provider, orUnknown(result)).Inc()
	m.ProviderCall.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordConversation counts a finished conversation.
func (m *Metrics) RecordConversation(outcome string) {
	if m == nil {
		return
	}
	m.Conversations.WithLabelValues(orUnknown(outcome)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
