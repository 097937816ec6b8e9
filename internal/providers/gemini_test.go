package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGemini_Complete(t *testing.T) {
	var got geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hel"}, {"text": "lo"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 2, "totalTokenCount": 10}
		}`))
	}))
	defer server.Close()

	g := NewGemini("test-key", "", testClient(server))
	resp, err := g.Complete(context.Background(), chatRequest("gemini-2.0-flash"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 10, resp.Usage.TotalTokens)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be terse", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "model", got.Contents[1].Role)
}

func TestGemini_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		writeSSE(w,
			`data: {"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`, "",
			`data: {"candidates":[{"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2,"totalTokenCount":6}}`, "",
		)
	}))
	defer server.Close()

	g := NewGemini("k", "", testClient(server))
	resp, texts, err := collect(t, g, chatRequest("gemini-2.0-flash"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, texts)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestGemini_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	g := NewGemini("k", "", testClient(server))
	_, err := g.Complete(context.Background(), chatRequest("gemini-2.0-flash"))
	require.Error(t, err)
}
