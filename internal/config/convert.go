package config

import (
	"github.com/dshills/tandem/internal/conversation"
	"github.com/dshills/tandem/internal/llm"
)

// Backends returns the validated senior and junior backends.
func (c Config) Backends() (senior, junior llm.Backend, err error) {
	if senior, err = c.Senior.backend("senior"); err != nil {
		return llm.Backend{}, llm.Backend{}, err
	}
	if junior, err = c.Junior.backend("junior"); err != nil {
		return llm.Backend{}, llm.Backend{}, err
	}
	return senior, junior, nil
}

// Sampling returns the generation parameters for an agent.
func (a AgentConfig) Sampling() llm.Sampling {
	return llm.Sampling{
		Temperature: a.Temperature,
		TopP:        a.TopP,
		MaxTokens:   a.MaxTokens,
	}
}

// Settings converts the config into conversation settings. Rules are left
// for the caller to load.
func (c Config) Settings() (conversation.Settings, error) {
	senior, junior, err := c.Backends()
	if err != nil {
		return conversation.Settings{}, err
	}
	return conversation.Settings{
		Senior:            senior,
		Junior:            junior,
		SeniorSampling:    c.Senior.Sampling(),
		JuniorSampling:    c.Junior.Sampling(),
		MaxRounds:         c.MaxRounds,
		AgreementSentinel: c.AgreementSentinel,
		Stream:            c.Stream,
	}, nil
}

// RetryPolicy converts the retry section into the registry's policy.
func (c Config) RetryPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay.Duration,
		MaxDelay:    c.Retry.MaxDelay.Duration,
	}
}

// APIKey returns the configured credential for a cloud provider.
func (c Config) APIKey(id llm.ProviderID) string {
	switch id {
	case llm.ProviderOpenAI:
		return c.Credentials.OpenAI
	case llm.ProviderAnthropic:
		return c.Credentials.Anthropic
	case llm.ProviderGemini:
		return c.Credentials.Gemini
	}
	return ""
}

// Endpoint returns the base URL override for a provider, if any.
func (c Config) Endpoint(id llm.ProviderID) string {
	switch id {
	case llm.ProviderOpenAI:
		return c.Endpoints.OpenAI
	case llm.ProviderAnthropic:
		return c.Endpoints.Anthropic
	case llm.ProviderGemini:
		return c.Endpoints.Gemini
	case llm.ProviderOllama:
		return c.Ollama.BaseURL
	}
	return ""
}

// Redacted returns a copy with credentials masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		if len(s) <= 8 {
			return "****"
		}
		return s[:4] + "****"
	}
	c.Credentials.OpenAI = mask(c.Credentials.OpenAI)
	c.Credentials.Anthropic = mask(c.Credentials.Anthropic)
	c.Credentials.Gemini = mask(c.Credentials.Gemini)
	return c
}
