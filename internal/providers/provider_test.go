package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tandem/internal/config"
	"github.com/dshills/tandem/internal/llm"
)

func TestBuildRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.Credentials.Anthropic = "sk-ant"

	reg, err := BuildRegistry(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []llm.ProviderID{llm.ProviderAnthropic, llm.ProviderOllama}, reg.Providers())

	senior, junior, err := cfg.Backends()
	require.NoError(t, err)
	_, err = reg.Resolve(senior)
	assert.NoError(t, err)
	_, err = reg.Resolve(junior)
	assert.NoError(t, err)
}

func TestBuildRegistryMissingCredential(t *testing.T) {
	cfg := config.Default()
	cfg.Junior = config.AgentConfig{Backend: "cloud", Provider: "openai", Model: "gpt-4o"}
	cfg.Credentials.Anthropic = "sk-ant"

	_, err := BuildRegistry(cfg, nil)
	require.Error(t, err)
	var ce *config.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "credentials.openai", ce.Field)
}
