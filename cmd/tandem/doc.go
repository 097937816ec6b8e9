// Tandem is a CLI that reviews code with two models in conversation.
//
// A senior model reviews the input and lists findings; a junior model checks
// that review and pushes back until it agrees or the round limit is reached.
// The verdict carries the full transcript, the senior's final findings, and
// deterministic exit codes suitable for CI gating and git hooks.
//
// Usage:
//
//	tandem review file main.go util.go     # review whole files
//	tandem review diff                     # review working tree changes
//	tandem review diff --staged            # review staged changes
//	tandem review diff origin/main..HEAD   # review a revision range
//	tandem review pr owner/repo#42         # review a GitHub pull request
//	tandem history list                    # browse past verdicts
//	tandem models doctor                   # check both backends respond
package main
