package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tandem/internal/llm"
)

func TestNewOllama_NormalizesURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultOllamaURL},
		{"http://gpu-box:11434/", "http://gpu-box:11434"},
		{"http://gpu-box:11434/v1", "http://gpu-box:11434"},
		{"http://gpu-box:11434/v1/chat/completions", "http://gpu-box:11434"},
		{"http://gpu-box:11434/api", "http://gpu-box:11434"},
		{"0.0.0.0:11434", "http://0.0.0.0:11434"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewOllama(tt.in, nil).baseURL, tt.in)
	}
}

func TestOllama_SupportsModel(t *testing.T) {
	o := NewOllama("", nil)
	for _, m := range []string{"qwen2.5-coder", "qwen2.5-coder:7b", "deepseek-coder-v2", "llama3.1:8b", "library/llama3.2"} {
		assert.True(t, o.SupportsModel(m), m)
	}
	for _, m := range []string{"", "mistral", "gpt-4o", "codellama"} {
		assert.False(t, o.SupportsModel(m), m)
	}
}

func TestOllama_Complete(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"Hello"},"done":true,"done_reason":"stop","prompt_eval_count":9,"eval_count":3}`))
	}))
	defer server.Close()

	o := NewOllama(server.URL, server.Client())
	resp, err := o.Complete(context.Background(), chatRequest("qwen2.5-coder"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 12, resp.Usage.TotalTokens)

	assert.False(t, got.Stream)
	require.NotNil(t, got.Options)
	assert.Equal(t, 64, got.Options.NumPredict)
	assert.Len(t, got.Messages, 4)
}

func TestOllama_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"Hel"},"done":false}
{"message":{"role":"assistant","content":"lo"},"done":false}

{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":2}
`))
	}))
	defer server.Close()

	o := NewOllama(server.URL, server.Client())
	resp, texts, err := collect(t, o, chatRequest("llama3.1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, texts)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestOllama_StreamErrorLine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model 'qwen9' not found"}` + "\n"))
	}))
	defer server.Close()

	o := NewOllama(server.URL, server.Client())
	_, _, err := collect(t, o, chatRequest("qwen9"))
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
}

func TestOllama_ModelNotFoundIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	o := NewOllama(server.URL, server.Client())
	_, err := o.Complete(context.Background(), chatRequest("qwen2.5-coder"))
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.Contains(t, err.Error(), "404")
}
