package llm

import (
	"fmt"
	"strings"
)

// ProviderID identifies a provider implementation.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGemini    ProviderID = "gemini"
	ProviderOllama    ProviderID = "ollama"
)

// CloudProviders lists the provider IDs that require credentials.
var CloudProviders = []ProviderID{ProviderOpenAI, ProviderAnthropic, ProviderGemini}

// ParseProviderID normalizes a provider name, accepting common aliases.
func ParseProviderID(s string) (ProviderID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "ollama", "lmstudio", "local":
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", s)
	}
}

// BackendKind distinguishes cloud API backends from on-device models.
type BackendKind string

const (
	BackendCloud    BackendKind = "cloud"
	BackendOnDevice BackendKind = "on_device"
)

// onDeviceAliases maps the short on-device model names to default Ollama tags.
var onDeviceAliases = map[string]string{
	"deepseek": "deepseek-coder-v2",
	"qwen":     "qwen2.5-coder",
	"llama":    "llama3.1",
}

// OnDeviceFamilies are the model families the on-device provider serves.
var OnDeviceFamilies = []string{"deepseek", "qwen", "llama"}

// Backend binds an agent to a provider and model. It is resolved once per
// conversation and never substituted afterwards.
type Backend struct {
	Kind     BackendKind `json:"kind" yaml:"kind"`
	Provider ProviderID  `json:"provider" yaml:"provider"`
	Model    string      `json:"model" yaml:"model"`
}

// Cloud returns a cloud backend for provider and model.
func Cloud(provider ProviderID, model string) Backend {
	return Backend{Kind: BackendCloud, Provider: provider, Model: model}
}

// OnDevice returns an on-device backend. Short aliases such as "qwen" expand
// to their default Ollama tag.
func OnDevice(model string) Backend {
	if tag, ok := onDeviceAliases[strings.ToLower(model)]; ok {
		model = tag
	}
	return Backend{Kind: BackendOnDevice, Provider: ProviderOllama, Model: model}
}

// ProviderID returns the provider that serves this backend.
func (b Backend) ProviderID() ProviderID {
	if b.Kind == BackendOnDevice {
		return ProviderOllama
	}
	return b.Provider
}

// String renders the backend as "provider:model".
func (b Backend) String() string {
	return string(b.ProviderID()) + ":" + b.Model
}

// ParseBackend parses "provider:model". The providers "ollama" and "local"
// produce on-device backends.
func ParseBackend(spec string) (Backend, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Backend{}, fmt.Errorf("invalid backend %q: expected provider:model", spec)
	}
	id, err := ParseProviderID(parts[0])
	if err != nil {
		return Backend{}, err
	}
	if id == ProviderOllama {
		return OnDevice(parts[1]), nil
	}
	return Cloud(id, parts[1]), nil
}
