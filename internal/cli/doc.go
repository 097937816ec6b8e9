// Package cli wires together the Cobra command tree for the tandem binary.
//
// It defines the root command and its subcommands (review, models, config,
// history, hook, version), binds flags, reads configuration, runs review
// conversations, and returns deterministic exit codes for CI gating.
package cli
