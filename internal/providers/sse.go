package providers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dshills/tandem/internal/llm"
)

// sseReader parses Server-Sent Events from a response body.
type sseReader struct {
	reader *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{reader: bufio.NewReader(r)}
}

// ReadEvent returns the next event type and data payload. Multiple data lines
// are joined with newlines. It returns io.EOF when the stream ends.
func (s *sseReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			if errors.Is(err, io.EOF) && len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[len("data:"):]))
		}
		// id:, retry: and ":" comments are ignored.
	}
}

// sseHandler converts one event into zero or more deltas. A delta with Done
// set ends the stream.
type sseHandler func(event string, data []byte) ([]llm.StreamDelta, error)

// pumpSSE reads events from resp until a final delta, EOF, or ctx is done, and
// closes the returned channel. EOF without a final delta simply closes the
// channel, which the aggregator reports as an incomplete stream.
func pumpSSE(ctx context.Context, id llm.ProviderID, resp *http.Response, handle sseHandler) <-chan llm.StreamDelta {
	ch := make(chan llm.StreamDelta)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		reader := newSSEReader(resp.Body)
		for {
			event, data, err := reader.ReadEvent()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					streamErr(ctx, ch, id, err)
				}
				return
			}
			deltas, err := handle(event, data)
			if err != nil {
				send(ctx, ch, llm.StreamDelta{Err: err})
				return
			}
			for _, d := range deltas {
				if !send(ctx, ch, d) {
					return
				}
				if d.Done {
					return
				}
			}
		}
	}()
	return ch
}
