// Package input turns a review target into a review.Input.
//
// Files are read from disk, diffs come from the local git repository, and
// pull requests are fetched from GitHub. Every kind applies the same byte
// limit and, when enabled, secret redaction before the content is handed to
// a conversation.
package input
