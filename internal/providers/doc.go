// Package providers implements llm.Provider for each supported model backend.
//
// Cloud providers: Anthropic (Claude), OpenAI (GPT and o-series), and Google
// (Gemini). On-device models are served by a local Ollama daemon through its
// native /api/chat endpoint.
//
// Providers only translate requests and classify failures; retry, per-call
// timeouts and pacing belong to llm.Registry. Rate limits, timeouts, 5xx
// responses and transport failures are reported as transient; authentication
// failures and other rejected requests are fatal. Streaming replies are read
// from Server-Sent Events (cloud) or newline-delimited JSON (Ollama).
//
// HTTP clients are injected so that tests can redirect calls to local
// httptest servers without making live API requests.
//
// Use [New] to obtain a provider by ID, or [BuildRegistry] to register every
// provider a config refers to.
package providers
