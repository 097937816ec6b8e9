package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tandem/internal/llm"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
		auth      bool
	}{
		{429, true, false},
		{408, true, false},
		{500, true, false},
		{503, true, false},
		{401, false, true},
		{403, false, true},
		{400, false, false},
		{404, false, false},
	}
	for _, tt := range tests {
		err := classifyStatus(llm.ProviderOpenAI, tt.status, []byte("body"))
		require.Error(t, err, "status %d", tt.status)
		assert.Equal(t, tt.transient, llm.IsTransient(err), "status %d", tt.status)
		assert.Equal(t, !tt.transient, llm.IsFatal(err), "status %d", tt.status)
		assert.Equal(t, tt.auth, llm.IsAuth(err), "status %d", tt.status)
	}
	assert.NoError(t, classifyStatus(llm.ProviderOpenAI, 200, nil))
}

func TestTransportErrorPassesThroughCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := transportError(ctx, llm.ProviderOpenAI, "sending request", errors.New("boom"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, llm.IsTransient(err))

	err = transportError(context.Background(), llm.ProviderOpenAI, "sending request", errors.New("boom"))
	assert.True(t, llm.IsTransient(err))
}

func TestUnreachableServerIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client := testClient(server)
	server.Close()

	p := NewOpenAI("k", "", client)
	_, err := p.Complete(context.Background(), chatRequest("gpt-4o"))
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
}

func TestNewRequiresKeyForCloud(t *testing.T) {
	_, err := New(llm.ProviderAnthropic, "", Options{})
	require.Error(t, err)

	p, err := New(llm.ProviderOllama, "", Options{})
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOllama, p.ID())

	p, err = New(llm.ProviderOpenAI, "", Options{BaseURL: "http://localhost:1234/v1"})
	require.NoError(t, err)
	assert.True(t, p.SupportsModel("mistral-7b"))
}
