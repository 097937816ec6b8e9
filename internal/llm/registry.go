package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AttemptResult labels the outcome of a single provider attempt.
type AttemptResult string

const (
	AttemptOK        AttemptResult = "ok"
	AttemptTransient AttemptResult = "transient"
	AttemptFatal     AttemptResult = "fatal"
	AttemptCancelled AttemptResult = "cancelled"
)

// AttemptHook observes every provider attempt made by Invoke.
type AttemptHook func(provider ProviderID, result AttemptResult, elapsed time.Duration)

// Registry owns the provider set and the invocation policy. Register is only
// called during setup; afterwards the registry is read-only and safe for
// concurrent use by any number of conversations.
type Registry struct {
	providers   map[ProviderID]Provider
	limiters    map[ProviderID]*rate.Limiter
	policy      RetryPolicy
	callTimeout time.Duration
	rps         float64
	logger      *zap.Logger
	hook        AttemptHook
	sleep       func(context.Context, time.Duration) error
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRetryPolicy sets the transient-failure retry policy.
func WithRetryPolicy(p RetryPolicy) RegistryOption {
	return func(r *Registry) { r.policy = p }
}

// WithCallTimeout bounds each individual provider attempt. Zero disables it.
func WithCallTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.callTimeout = d }
}

// WithRateLimit paces attempts per provider to rps requests per second.
// Zero or negative disables pacing.
func WithRateLimit(rps float64) RegistryOption {
	return func(r *Registry) { r.rps = rps }
}

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithAttemptHook registers a callback invoked after every attempt.
func WithAttemptHook(h AttemptHook) RegistryOption {
	return func(r *Registry) { r.hook = h }
}

// withSleep replaces the backoff sleeper; used by tests.
func withSleep(fn func(context.Context, time.Duration) error) RegistryOption {
	return func(r *Registry) { r.sleep = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		providers:   make(map[ProviderID]Provider),
		limiters:    make(map[ProviderID]*rate.Limiter),
		policy:      DefaultRetryPolicy(),
		callTimeout: 2 * time.Minute,
		logger:      zap.NewNop(),
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds (or replaces) a provider under its ID.
func (r *Registry) Register(p Provider) {
	r.providers[p.ID()] = p
	if r.rps > 0 {
		burst := int(r.rps)
		if burst < 1 {
			burst = 1
		}
		r.limiters[p.ID()] = rate.NewLimiter(rate.Limit(r.rps), burst)
	}
}

// Providers returns the registered provider IDs in sorted order.
func (r *Registry) Providers() []ProviderID {
	ids := make([]ProviderID, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Resolve returns the provider serving b. It fails with ErrUnsupportedModel
// when the provider is not registered or does not serve the model. It never
// performs I/O.
func (r *Registry) Resolve(b Backend) (Provider, error) {
	id := b.ProviderID()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q not registered (available: %v)", ErrUnsupportedModel, id, r.Providers())
	}
	if b.Model == "" || !p.SupportsModel(b.Model) {
		return nil, fmt.Errorf("%w: %s does not serve model %q", ErrUnsupportedModel, id, b.Model)
	}
	return p, nil
}

// Invoke calls p with req. A nil onDelta performs a whole completion;
// otherwise the reply is streamed, each delta is forwarded to onDelta, and
// the stream is aggregated.
//
// Transient failures and per-call timeouts are retried according to the
// retry policy; when attempts run out the last error is wrapped in
// ErrRetriesExhausted. Fatal failures and caller cancellation return at once.
// A retried stream restarts from the beginning, so onDelta may observe the
// same text more than once.
func (r *Registry) Invoke(ctx context.Context, p Provider, req Request, onDelta func(StreamDelta)) (Response, error) {
	maxAttempts := r.policy.attempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := r.wait(ctx, p.ID()); err != nil {
			return Response{}, err
		}

		start := time.Now()
		resp, err := r.attempt(ctx, p, req, onDelta)
		elapsed := time.Since(start)
		if err == nil {
			r.record(p.ID(), AttemptOK, elapsed)
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			r.record(p.ID(), AttemptCancelled, elapsed)
			return Response{}, fmt.Errorf("%s: %w", p.ID(), ctxErr)
		}
		if !retryable(err) {
			r.record(p.ID(), AttemptFatal, elapsed)
			return Response{}, err
		}
		r.record(p.ID(), AttemptTransient, elapsed)
		lastErr = err

		if attempt < maxAttempts {
			delay := r.policy.Backoff(attempt)
			r.logger.Warn("provider call failed, retrying",
				zap.String("provider", string(p.ID())),
				zap.String("model", req.Model),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			if err := r.sleep(ctx, delay); err != nil {
				return Response{}, fmt.Errorf("%s: %w", p.ID(), err)
			}
		}
	}

	return Response{}, fmt.Errorf("%s: %w after %d attempts: %w", p.ID(), ErrRetriesExhausted, maxAttempts, lastErr)
}

// wait blocks on the provider's rate limiter. A wait that would outlast the
// caller's deadline fails with context.DeadlineExceeded before it expires.
func (r *Registry) wait(ctx context.Context, id ProviderID) error {
	lim := r.limiters[id]
	if lim == nil {
		return nil
	}
	err := lim.Wait(ctx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%s: waiting for rate limiter: %w", id, ctx.Err())
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%s: waiting for rate limiter: %w (%v)", id, context.DeadlineExceeded, err)
	}
	return fmt.Errorf("%s: waiting for rate limiter: %w", id, err)
}

func (r *Registry) attempt(ctx context.Context, p Provider, req Request, onDelta func(StreamDelta)) (Response, error) {
	callCtx := ctx
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	if onDelta == nil {
		return p.Complete(callCtx, req)
	}

	deltas, err := p.Stream(callCtx, req)
	if err != nil {
		return Response{}, err
	}
	return Aggregate(callCtx, req.Model, deltas, onDelta)
}

func (r *Registry) record(id ProviderID, result AttemptResult, elapsed time.Duration) {
	if r.hook != nil {
		r.hook(id, result, elapsed)
	}
}

// retryable reports whether an attempt error (with the caller's context still
// live) should be retried. A deadline here can only be the per-call timeout.
func retryable(err error) bool {
	return IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}
