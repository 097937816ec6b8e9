package providers

import (
	"fmt"
	"net/http"

	"github.com/dshills/tandem/internal/config"
	"github.com/dshills/tandem/internal/llm"
)

// Options configures provider construction.
type Options struct {
	// BaseURL overrides the provider's default endpoint.
	BaseURL string
	// HTTPClient is shared by all calls. Per-call timeouts come from the
	// registry, so the client should not set its own Timeout.
	HTTPClient *http.Client
}

// New creates a provider by ID. Cloud providers require an API key unless
// BaseURL points at a compatible server.
func New(id llm.ProviderID, apiKey string, opts Options) (llm.Provider, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if id != llm.ProviderOllama && apiKey == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("%s: API key is not set", id)
	}
	switch id {
	case llm.ProviderOpenAI:
		return NewOpenAI(apiKey, opts.BaseURL, client), nil
	case llm.ProviderAnthropic:
		return NewAnthropic(apiKey, opts.BaseURL, client), nil
	case llm.ProviderGemini:
		return NewGemini(apiKey, opts.BaseURL, client), nil
	case llm.ProviderOllama:
		return NewOllama(opts.BaseURL, client), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
}

// BuildRegistry creates a registry with the config's retry policy, timeout and
// pacing, and registers a provider for each backend the config uses. Extra
// options (logger, attempt hook) are applied after the config-derived ones.
func BuildRegistry(cfg config.Config, client *http.Client, opts ...llm.RegistryOption) (*llm.Registry, error) {
	senior, junior, err := cfg.Backends()
	if err != nil {
		return nil, err
	}

	base := []llm.RegistryOption{
		llm.WithRetryPolicy(cfg.RetryPolicy()),
		llm.WithCallTimeout(cfg.Retry.CallTimeout.Duration),
		llm.WithRateLimit(cfg.Retry.RequestsPerSecond),
	}
	reg := llm.NewRegistry(append(base, opts...)...)

	seen := map[llm.ProviderID]bool{}
	for _, b := range []llm.Backend{senior, junior} {
		id := b.ProviderID()
		if seen[id] {
			continue
		}
		seen[id] = true

		p, err := New(id, cfg.APIKey(id), Options{BaseURL: cfg.Endpoint(id), HTTPClient: client})
		if err != nil {
			return nil, &config.Error{Field: "credentials." + string(id), Reason: err.Error()}
		}
		reg.Register(p)
	}
	return reg, nil
}
