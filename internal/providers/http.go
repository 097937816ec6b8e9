package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dshills/tandem/internal/llm"
)

// maxErrorBody caps how much of a failed response body is kept in errors.
const maxErrorBody = 2048

const defaultMaxTokens = 4096

// classifyStatus maps a non-2xx HTTP status to a provider error.
func classifyStatus(id llm.ProviderID, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llm.NewAuthError(id, status, msg)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return llm.NewTransient(id, status, msg, nil)
	default:
		return llm.NewFatal(id, status, msg, nil)
	}
}

// transportError classifies a failure to send or read. Caller cancellation
// is passed through unclassified.
func transportError(ctx context.Context, id llm.ProviderID, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return llm.NewTransient(id, 0, op, err)
}

// postJSON sends body as JSON and returns the response when the status is
// 2xx. The caller must close the returned body.
func postJSON(ctx context.Context, client *http.Client, id llm.ProviderID, url string, headers map[string]string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewFatal(id, 0, "marshaling request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, llm.NewFatal(id, 0, "creating request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, id, "sending request", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, classifyStatus(id, httpResp.StatusCode, respBody)
	}
	return httpResp, nil
}

// doJSON posts body and decodes the 2xx response into out.
func doJSON(ctx context.Context, client *http.Client, id llm.ProviderID, url string, headers map[string]string, body, out any) error {
	httpResp, err := postJSON(ctx, client, id, url, headers, body)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return transportError(ctx, id, "reading response", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return llm.NewFatal(id, httpResp.StatusCode, "parsing response", err)
	}
	return nil
}

// send delivers d unless ctx is done first.
func send(ctx context.Context, ch chan<- llm.StreamDelta, d llm.StreamDelta) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- d:
		return true
	}
}

// streamErr reports a mid-stream read failure unless the caller has gone away.
func streamErr(ctx context.Context, ch chan<- llm.StreamDelta, id llm.ProviderID, err error) {
	if ctx.Err() != nil {
		return
	}
	send(ctx, ch, llm.StreamDelta{Err: llm.NewTransient(id, 0, "reading stream", err)})
}

func maxTokens(s llm.Sampling) int {
	if s.MaxTokens > 0 {
		return s.MaxTokens
	}
	return defaultMaxTokens
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func malformed(id llm.ProviderID, format string, args ...any) error {
	return llm.NewFatal(id, 0, fmt.Sprintf(format, args...), nil)
}
