// Package redact removes secrets from review input before it is sent to any
// model provider.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS credentials, bearer tokens, credentials embedded in
// database connection strings, and provider-specific tokens (Anthropic,
// OpenAI, Google, GitHub, Slack).
//
// Files whose paths match configured glob patterns are withheld entirely
// rather than scanned. In a diff only that file's section is withheld; its
// header stays so reviewers still see the file changed.
package redact
