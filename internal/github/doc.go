// Package github is a minimal GitHub REST API client for pull request
// review.
//
// FetchPR downloads a pull request's title, unified diff, and file list for
// the pr review input. PostReview publishes a verdict as a PR review, with
// findings that point into the diff posted as inline comments. A bare PR
// number is resolved against the local origin remote.
package github
