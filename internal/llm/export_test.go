package llm

// WithSleep exposes the backoff sleeper override to external tests.
var WithSleep = withSleep
