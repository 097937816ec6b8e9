// Package config loads and merges tandem configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags, passed to [LoadFrom] as dotted-key overrides
//  2. Environment variables (TANDEM_SENIOR, TANDEM_MAX_ROUNDS, OPENAI_API_KEY, etc.)
//  3. Config file ($TANDEM_CONFIG or $XDG_CONFIG_HOME/tandem/config.toml)
//  4. Built-in defaults
//
// [Config.Validate] checks a merged config before any provider is called and
// reports the first problem as *[Error]. [SetField] updates a single key by
// its dotted name; [Keys] lists them.
package config
