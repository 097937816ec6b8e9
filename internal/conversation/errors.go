package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/review"
)

// Error kinds. Match them with errors.Is against an *Error.
var (
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrProviderExhausted = errors.New("provider retries exhausted")
	ErrProviderFatal     = errors.New("provider failed")
	ErrCancelled         = errors.New("conversation cancelled")
	ErrMalformedResponse = errors.New("malformed response")
)

// Error is a conversation failure. errors.Is matches Kind; errors.As reaches
// the underlying provider error through Err.
type Error struct {
	Kind  error
	Agent review.Agent
	// Round is the 1-based round the failing turn belonged to, or 0 when the
	// failure happened before the first turn.
	Round int
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Agent != "" {
		msg = fmt.Sprintf("%s turn (round %d): %s", e.Agent, e.Round, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// classify maps a registry error to a conversation error kind.
func classify(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ErrCancelled
	case errors.Is(err, llm.ErrRetriesExhausted):
		return ErrProviderExhausted
	case errors.Is(err, llm.ErrUnsupportedModel):
		return ErrUnsupportedModel
	// Per-call timeouts are retried and end up exhausted above; a bare
	// deadline here is the caller's.
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCancelled
	default:
		return ErrProviderFatal
	}
}
