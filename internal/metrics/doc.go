// Package metrics exposes Prometheus collectors for review conversations:
// turns, provider attempts and latency, conversation outcomes, and tokens.
// Collectors live in a private registry served by Handler or Serve.
package metrics
