// Package llm defines the provider-neutral chat types, the Provider contract,
// and the Registry that resolves agent backends to providers and invokes them.
//
// Providers are keyed by ProviderID. A Backend names either a cloud provider
// and model or an on-device model; on-device backends are always served by the
// Ollama provider. The registry never performs I/O during resolution. Invoke
// applies a per-call timeout, optional client-side pacing, and bounded
// exponential backoff for transient failures.
//
// Streaming responses arrive as a channel of StreamDelta values and are reduced
// to a single Response by Aggregate, which stops consuming as soon as the
// caller's context is done and never returns partial text.
package llm
