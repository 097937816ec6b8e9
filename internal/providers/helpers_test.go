package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/tandem/internal/llm"
)

// rewriteTransport rewrites all request URLs to point at the test server.
type rewriteTransport struct {
	base    http.RoundTripper
	baseURL string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = t.baseURL[len("http://"):]
	if t.base != nil {
		return t.base.RoundTrip(req)
	}
	return http.DefaultTransport.RoundTrip(req)
}

// testClient returns a client whose requests all land on server.
func testClient(server *httptest.Server) *http.Client {
	return &http.Client{Transport: &rewriteTransport{base: server.Client().Transport, baseURL: server.URL}}
}

func chatRequest(model string) llm.Request {
	temp := 0.1
	return llm.Request{
		Model: model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: "be terse"},
			{Role: llm.RoleUser, Content: "review this"},
			{Role: llm.RoleAssistant, Content: "looks fine"},
			{Role: llm.RoleUser, Content: "are you sure?"},
		},
		Sampling: llm.Sampling{Temperature: &temp, MaxTokens: 64},
	}
}

// collect drains a stream through the aggregator.
func collect(t *testing.T, p llm.Provider, req llm.Request) (llm.Response, []string, error) {
	t.Helper()
	ch, err := p.Stream(context.Background(), req)
	require.NoError(t, err)
	var texts []string
	resp, err := llm.Aggregate(context.Background(), req.Model, ch, func(d llm.StreamDelta) {
		if d.Text != "" {
			texts = append(texts, d.Text)
		}
	})
	return resp, texts, err
}

func writeSSE(w http.ResponseWriter, lines ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, l := range lines {
		_, _ = w.Write([]byte(l + "\n"))
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
