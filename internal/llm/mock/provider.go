package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dshills/tandem/internal/llm"
)

// Provider is a test double implementing llm.Provider.
type Provider struct {
	IDValue llm.ProviderID
	// Models restricts SupportsModel; nil accepts every model.
	Models     []string
	CompleteFn func(ctx context.Context, req llm.Request) (llm.Response, error)
	StreamFn   func(ctx context.Context, req llm.Request) (<-chan llm.StreamDelta, error)
	// StreamDeltas is replayed by Stream when StreamFn is nil.
	StreamDeltas []llm.StreamDelta

	calls atomic.Int32

	mu       sync.Mutex
	requests []llm.Request
}

func (p *Provider) ID() llm.ProviderID {
	if p.IDValue != "" {
		return p.IDValue
	}
	return "mock"
}

func (p *Provider) SupportsModel(model string) bool {
	if p.Models == nil {
		return true
	}
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}

func (p *Provider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	p.record(req)
	if p.CompleteFn != nil {
		return p.CompleteFn(ctx, req)
	}
	return llm.Response{Model: req.Model, Content: "mock", FinishReason: "stop"}, nil
}

func (p *Provider) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamDelta, error) {
	p.record(req)
	if p.StreamFn != nil {
		return p.StreamFn(ctx, req)
	}
	return Replay(ctx, p.StreamDeltas), nil
}

// Calls returns how many Complete and Stream calls were made.
func (p *Provider) Calls() int {
	return int(p.calls.Load())
}

// Requests returns a copy of every request received, in call order.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *Provider) record(req llm.Request) {
	p.calls.Add(1)
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
}

// Replay returns a channel that yields deltas in order and then closes. It
// stops early once ctx is done.
func Replay(ctx context.Context, deltas []llm.StreamDelta) <-chan llm.StreamDelta {
	ch := make(chan llm.StreamDelta)
	go func() {
		defer close(ch)
		for _, d := range deltas {
			select {
			case <-ctx.Done():
				return
			case ch <- d:
			}
		}
	}()
	return ch
}
