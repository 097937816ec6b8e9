package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dshills/tandem/internal/llm"
)

// Config is the tandem configuration. It is the single source of truth for
// both agents' backends, credentials, and the conversation policy.
type Config struct {
	MaxRounds         int    `toml:"max_rounds" json:"max_rounds"`
	AgreementSentinel string `toml:"agreement_sentinel" json:"agreement_sentinel"`
	Stream            bool   `toml:"stream" json:"stream"`
	Format            string `toml:"format" json:"format"`
	FailOn            string `toml:"fail_on" json:"fail_on"`
	RulesFile         string `toml:"rules_file" json:"rules_file,omitempty"`

	Senior      AgentConfig       `toml:"senior" json:"senior"`
	Junior      AgentConfig       `toml:"junior" json:"junior"`
	Credentials CredentialsConfig `toml:"credentials" json:"credentials"`
	Endpoints   EndpointsConfig   `toml:"endpoints" json:"endpoints"`
	Ollama      OllamaConfig      `toml:"ollama" json:"ollama"`
	Retry       RetryConfig       `toml:"retry" json:"retry"`
	Input       InputConfig       `toml:"input" json:"input"`
	Privacy     PrivacyConfig     `toml:"privacy" json:"privacy"`
	History     HistoryConfig     `toml:"history" json:"history"`
	Log         LogConfig         `toml:"log" json:"log"`
}

// AgentConfig binds one agent to a backend.
type AgentConfig struct {
	Backend     string   `toml:"backend" json:"backend"`
	Provider    string   `toml:"provider,omitempty" json:"provider,omitempty"`
	Model       string   `toml:"model" json:"model"`
	Temperature *float64 `toml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP        *float64 `toml:"top_p,omitempty" json:"top_p,omitempty"`
	MaxTokens   int      `toml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// CredentialsConfig holds API keys keyed by cloud provider.
type CredentialsConfig struct {
	OpenAI    string `toml:"openai" json:"openai"`
	Anthropic string `toml:"anthropic" json:"anthropic"`
	Gemini    string `toml:"gemini" json:"gemini"`
}

// EndpointsConfig overrides cloud API base URLs.
type EndpointsConfig struct {
	OpenAI    string `toml:"openai,omitempty" json:"openai,omitempty"`
	Anthropic string `toml:"anthropic,omitempty" json:"anthropic,omitempty"`
	Gemini    string `toml:"gemini,omitempty" json:"gemini,omitempty"`
}

// OllamaConfig locates the on-device model server.
type OllamaConfig struct {
	BaseURL string `toml:"base_url" json:"base_url"`
}

// RetryConfig controls provider call retries, timeouts, and pacing.
type RetryConfig struct {
	MaxAttempts       int      `toml:"max_attempts" json:"max_attempts"`
	BaseDelay         Duration `toml:"base_delay" json:"base_delay"`
	MaxDelay          Duration `toml:"max_delay" json:"max_delay"`
	CallTimeout       Duration `toml:"call_timeout" json:"call_timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second" json:"requests_per_second"`
}

// InputConfig controls how review inputs are read.
type InputConfig struct {
	ContextLines int      `toml:"context_lines" json:"context_lines"`
	MaxBytes     int      `toml:"max_bytes" json:"max_bytes"`
	Include      []string `toml:"include" json:"include"`
	Exclude      []string `toml:"exclude" json:"exclude"`
}

// PrivacyConfig controls privacy/redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool     `toml:"redact_secrets" json:"redact_secrets"`
	RedactPaths   []string `toml:"redact_paths,omitempty" json:"redact_paths,omitempty"`
}

// HistoryConfig controls the verdict history store.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path,omitempty" json:"path,omitempty"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// Duration is a time.Duration that reads and writes as "500ms", "2m", etc.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Error is a configuration problem tied to a single field.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns a Config with all defaults applied.
func Default() Config {
	temp := 0.2
	return Config{
		MaxRounds:         3,
		AgreementSentinel: "[AGREE]",
		Format:            "text",
		FailOn:            "none",
		Senior: AgentConfig{
			Backend:     string(llm.BackendCloud),
			Provider:    string(llm.ProviderAnthropic),
			Model:       "claude-sonnet-4-5",
			Temperature: &temp,
			MaxTokens:   4096,
		},
		Junior: AgentConfig{
			Backend: string(llm.BackendOnDevice),
			Model:   "qwen",
		},
		Ollama: OllamaConfig{BaseURL: "http://localhost:11434"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration{500 * time.Millisecond},
			MaxDelay:    Duration{8 * time.Second},
			CallTimeout: Duration{2 * time.Minute},
		},
		Input: InputConfig{
			ContextLines: 3,
			MaxBytes:     500000,
			Include:      []string{"**/*"},
			Exclude:      []string{"vendor/**", "**/*.gen.go", "**/dist/**"},
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		History: HistoryConfig{Enabled: true},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// ConfigDir returns the platform-appropriate config directory for tandem.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tandem"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "tandem"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "tandem"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "tandem"), nil
	default:
		return filepath.Join(home, ".config", "tandem"), nil
	}
}

// ConfigPath returns the full path to the config file. TANDEM_CONFIG
// overrides the default location.
func ConfigPath() (string, error) {
	if p := os.Getenv("TANDEM_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// HistoryPath returns the history database path, defaulting to the config
// directory.
func (c Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// LoadFile decodes the config file at path on top of cfg. A missing file is
// not an error. Unknown keys are rejected.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return &Error{Field: path, Reason: err.Error()}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return &Error{Field: keys[0], Reason: "unknown config key"}
	}
	return nil
}

// SaveTo writes cfg as TOML to path. The file may contain credentials, so it
// is created owner-readable only.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// Override keys use the same dotted names as SetField.
func Load(overrides map[string]string) (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(path, overrides)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string, overrides map[string]string) (Config, error) {
	cfg := Default()
	if err := LoadFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeys maps environment variables to config keys. Earlier entries in a
// group lose to later ones (GOOGLE_API_KEY is the fallback for Gemini).
var envKeys = []struct {
	env string
	key string
}{
	{"TANDEM_SENIOR", "senior"},
	{"TANDEM_JUNIOR", "junior"},
	{"TANDEM_MAX_ROUNDS", "max_rounds"},
	{"TANDEM_SENTINEL", "agreement_sentinel"},
	{"TANDEM_STREAM", "stream"},
	{"TANDEM_FORMAT", "format"},
	{"TANDEM_FAIL_ON", "fail_on"},
	{"TANDEM_RULES_FILE", "rules_file"},
	{"TANDEM_LOG_LEVEL", "log.level"},
	{"TANDEM_LOG_FORMAT", "log.format"},
	{"TANDEM_HISTORY_PATH", "history.path"},
	{"TANDEM_OPENAI_BASE_URL", "endpoints.openai"},
	{"TANDEM_ANTHROPIC_BASE_URL", "endpoints.anthropic"},
	{"TANDEM_GEMINI_BASE_URL", "endpoints.gemini"},
	{"OPENAI_API_KEY", "credentials.openai"},
	{"ANTHROPIC_API_KEY", "credentials.anthropic"},
	{"GOOGLE_API_KEY", "credentials.gemini"},
	{"GEMINI_API_KEY", "credentials.gemini"},
	{"OLLAMA_HOST", "ollama.base_url"},
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return &Error{Field: e.env, Reason: errReason(err)}
		}
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	keys := make([]string, 0, len(overrides))
	for k, v := range overrides {
		if v != "" {
			keys = append(keys, k)
		}
	}
	// Whole-agent keys ("senior") apply before their sub-keys ("senior.model").
	sort.Strings(keys)
	for _, k := range keys {
		if err := SetField(cfg, k, overrides[k]); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists every key accepted by SetField.
func Keys() []string {
	keys := []string{
		"max_rounds", "agreement_sentinel", "stream", "format", "fail_on", "rules_file",
		"senior", "junior",
		"credentials.openai", "credentials.anthropic", "credentials.gemini",
		"endpoints.openai", "endpoints.anthropic", "endpoints.gemini",
		"ollama.base_url",
		"retry.max_attempts", "retry.base_delay", "retry.max_delay", "retry.call_timeout", "retry.requests_per_second",
		"input.context_lines", "input.max_bytes", "input.include", "input.exclude",
		"privacy.redact_secrets",
		"history.enabled", "history.path",
		"log.level", "log.format",
	}
	for _, agent := range []string{"senior", "junior"} {
		for _, f := range []string{"backend", "provider", "model", "temperature", "top_p", "max_tokens"} {
			keys = append(keys, agent+"."+f)
		}
	}
	return keys
}

// SetField sets a single config field by its dotted key. Returns *Error if the
// key is unknown or the value does not parse.
func SetField(cfg *Config, key, value string) error {
	if agent, field, ok := strings.Cut(key, "."); ok && (agent == "senior" || agent == "junior") {
		a := &cfg.Senior
		if agent == "junior" {
			a = &cfg.Junior
		}
		return setAgentField(a, key, field, value)
	}

	switch key {
	case "max_rounds":
		return setInt(&cfg.MaxRounds, key, value)
	case "agreement_sentinel":
		cfg.AgreementSentinel = value
	case "stream":
		return setBool(&cfg.Stream, key, value)
	case "format":
		cfg.Format = value
	case "fail_on":
		cfg.FailOn = value
	case "rules_file":
		cfg.RulesFile = value
	case "senior", "junior":
		b, err := llm.ParseBackend(value)
		if err != nil {
			return &Error{Field: key, Reason: err.Error()}
		}
		a := &cfg.Senior
		if key == "junior" {
			a = &cfg.Junior
		}
		a.Backend = string(b.Kind)
		a.Provider = string(b.ProviderID())
		a.Model = b.Model
	case "credentials.openai":
		cfg.Credentials.OpenAI = value
	case "credentials.anthropic":
		cfg.Credentials.Anthropic = value
	case "credentials.gemini":
		cfg.Credentials.Gemini = value
	case "endpoints.openai":
		cfg.Endpoints.OpenAI = value
	case "endpoints.anthropic":
		cfg.Endpoints.Anthropic = value
	case "endpoints.gemini":
		cfg.Endpoints.Gemini = value
	case "ollama.base_url":
		cfg.Ollama.BaseURL = value
	case "retry.max_attempts":
		return setInt(&cfg.Retry.MaxAttempts, key, value)
	case "retry.base_delay":
		return setDuration(&cfg.Retry.BaseDelay, key, value)
	case "retry.max_delay":
		return setDuration(&cfg.Retry.MaxDelay, key, value)
	case "retry.call_timeout":
		return setDuration(&cfg.Retry.CallTimeout, key, value)
	case "retry.requests_per_second":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &Error{Field: key, Reason: "must be a number"}
		}
		cfg.Retry.RequestsPerSecond = f
	case "input.context_lines":
		return setInt(&cfg.Input.ContextLines, key, value)
	case "input.max_bytes":
		return setInt(&cfg.Input.MaxBytes, key, value)
	case "input.include":
		cfg.Input.Include = splitList(value)
	case "input.exclude":
		cfg.Input.Exclude = splitList(value)
	case "privacy.redact_secrets":
		return setBool(&cfg.Privacy.RedactSecrets, key, value)
	case "history.enabled":
		return setBool(&cfg.History.Enabled, key, value)
	case "history.path":
		cfg.History.Path = value
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	default:
		return &Error{Field: key, Reason: "unknown config key"}
	}
	return nil
}

func setAgentField(a *AgentConfig, key, field, value string) error {
	switch field {
	case "backend":
		a.Backend = value
	case "provider":
		a.Provider = value
	case "model":
		a.Model = value
	case "temperature", "top_p":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &Error{Field: key, Reason: "must be a number"}
		}
		if field == "temperature" {
			a.Temperature = &f
		} else {
			a.TopP = &f
		}
	case "max_tokens":
		return setInt(&a.MaxTokens, key, value)
	default:
		return &Error{Field: key, Reason: "unknown config key"}
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return &Error{Field: key, Reason: "must be an integer"}
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return &Error{Field: key, Reason: "must be true or false"}
	}
	*dst = b
	return nil
}

func setDuration(dst *Duration, key, value string) error {
	if err := dst.UnmarshalText([]byte(value)); err != nil {
		return &Error{Field: key, Reason: "must be a duration such as 500ms or 2m"}
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func errReason(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return err.Error()
}
