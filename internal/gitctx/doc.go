// Package gitctx extracts diffs and repository metadata from a git
// repository for diff review.
//
// Repo.Diff picks one of four modes from a short spec: unstaged changes,
// staged changes, a single commit, or a revision range. It shells out to git
// with the context attached, filters the result by include/exclude glob
// patterns, and truncates it to a maximum byte size on a line boundary.
package gitctx
