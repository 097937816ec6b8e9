package llm

import "context"

// Provider is the capability set every backend family implements.
// Implementations must be safe for concurrent use.
type Provider interface {
	// ID returns the provider identity used for registry lookup.
	ID() ProviderID
	// SupportsModel reports whether model can be served. It must not do I/O.
	SupportsModel(model string) bool
	// Complete performs a whole (non-streaming) completion.
	Complete(ctx context.Context, req Request) (Response, error)
	// Stream starts a streaming completion. The returned channel is closed by
	// the provider; it stops sending once ctx is done.
	Stream(ctx context.Context, req Request) (<-chan StreamDelta, error)
}
