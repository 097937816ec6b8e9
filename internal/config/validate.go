package config

import (
	"strings"

	"github.com/dshills/tandem/internal/llm"
)

var (
	validFormats = []string{"text", "json", "markdown", "yaml", "sarif"}
	validFailOn  = []string{"none", "low", "medium", "high"}
	validLevels  = []string{"debug", "info", "warn", "error"}
	validLogFmts = []string{"console", "json"}
)

// Validate checks the config before any conversation starts. It returns the
// first problem found as *Error.
func (c Config) Validate() error {
	senior, err := c.Senior.backend("senior")
	if err != nil {
		return err
	}
	junior, err := c.Junior.backend("junior")
	if err != nil {
		return err
	}
	for _, b := range []struct {
		field   string
		backend llm.Backend
	}{{"senior", senior}, {"junior", junior}} {
		if b.backend.Kind != llm.BackendCloud {
			continue
		}
		if c.APIKey(b.backend.Provider) == "" && c.Endpoint(b.backend.Provider) == "" {
			return &Error{
				Field:  "credentials." + string(b.backend.Provider),
				Reason: "no API key for the " + b.field + " backend (set it in the config file or the provider's API key variable)",
			}
		}
	}

	if c.MaxRounds < 0 {
		return &Error{Field: "max_rounds", Reason: "must be >= 0"}
	}
	if strings.TrimSpace(c.AgreementSentinel) == "" {
		return &Error{Field: "agreement_sentinel", Reason: "must not be empty"}
	}
	if !oneOf(c.Format, validFormats) {
		return &Error{Field: "format", Reason: "must be one of " + strings.Join(validFormats, ", ")}
	}
	if !oneOf(c.FailOn, validFailOn) {
		return &Error{Field: "fail_on", Reason: "must be one of " + strings.Join(validFailOn, ", ")}
	}

	r := c.Retry
	switch {
	case r.MaxAttempts < 1:
		return &Error{Field: "retry.max_attempts", Reason: "must be >= 1"}
	case r.BaseDelay.Duration < 0:
		return &Error{Field: "retry.base_delay", Reason: "must not be negative"}
	case r.MaxDelay.Duration < 0 || (r.MaxDelay.Duration > 0 && r.MaxDelay.Duration < r.BaseDelay.Duration):
		return &Error{Field: "retry.max_delay", Reason: "must be >= retry.base_delay"}
	case r.CallTimeout.Duration < 0:
		return &Error{Field: "retry.call_timeout", Reason: "must not be negative"}
	case r.RequestsPerSecond < 0:
		return &Error{Field: "retry.requests_per_second", Reason: "must not be negative"}
	}

	if c.Input.MaxBytes < 0 {
		return &Error{Field: "input.max_bytes", Reason: "must not be negative"}
	}
	if !oneOf(c.Log.Level, validLevels) {
		return &Error{Field: "log.level", Reason: "must be one of " + strings.Join(validLevels, ", ")}
	}
	if !oneOf(c.Log.Format, validLogFmts) {
		return &Error{Field: "log.format", Reason: "must be one of " + strings.Join(validLogFmts, ", ")}
	}
	return nil
}

func (a AgentConfig) backend(field string) (llm.Backend, error) {
	if strings.TrimSpace(a.Model) == "" {
		return llm.Backend{}, &Error{Field: field + ".model", Reason: "must not be empty"}
	}
	switch llm.BackendKind(a.Backend) {
	case llm.BackendOnDevice:
		return llm.OnDevice(a.Model), nil
	case llm.BackendCloud:
		id, err := llm.ParseProviderID(a.Provider)
		if err != nil {
			return llm.Backend{}, &Error{Field: field + ".provider", Reason: err.Error()}
		}
		if id == llm.ProviderOllama {
			return llm.Backend{}, &Error{Field: field + ".backend", Reason: `ollama models use backend = "on_device"`}
		}
		return llm.Cloud(id, a.Model), nil
	default:
		return llm.Backend{}, &Error{Field: field + ".backend", Reason: `must be "cloud" or "on_device"`}
	}
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
