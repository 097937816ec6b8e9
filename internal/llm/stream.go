package llm

import (
	"context"
	"fmt"
	"strings"
)

// Aggregate consumes deltas until the final one and reduces them to a single
// Response. Each delta is forwarded to onDelta when it is non-nil.
//
// If ctx is done before the final delta, Aggregate stops reading and returns
// the context error; accumulated text is discarded. A channel that closes
// without a final delta yields ErrIncompleteStream.
func Aggregate(ctx context.Context, model string, deltas <-chan StreamDelta, onDelta func(StreamDelta)) (Response, error) {
	var content strings.Builder
	for {
		// Checked first so a ready delta never wins over cancellation.
		if err := ctx.Err(); err != nil {
			return Response{}, fmt.Errorf("stream cancelled: %w", err)
		}
		select {
		case <-ctx.Done():
			return Response{}, fmt.Errorf("stream cancelled: %w", ctx.Err())
		case d, ok := <-deltas:
			if !ok {
				return Response{}, ErrIncompleteStream
			}
			if d.Err != nil {
				return Response{}, d.Err
			}
			content.WriteString(d.Text)
			if onDelta != nil {
				onDelta(d)
			}
			if d.Done {
				return Response{
					Model:        model,
					Content:      content.String(),
					FinishReason: d.FinishReason,
					Usage:        d.Usage,
				}, nil
			}
		}
	}
}
