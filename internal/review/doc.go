// Package review contains the review domain types and the prompt side of a
// senior/junior review conversation.
//
// It defines Input (the code under review), Turn (one transcript entry),
// Verdict (the conversation result), and the Finding and Severity types. The
// Builder renders each agent's request from the input and the transcript so
// far; ParseFindings and ExtractFindings recover the senior reviewer's
// structured findings from its last reply. Finding IDs are stable SHA-256
// hashes of path, title, and start line.
//
// Rules packs (rules.go) allow callers to override finding severities, specify
// focus areas, and declare required checks that must appear in every review.
package review
