package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// DiffOptions controls how diffs are gathered.
type DiffOptions struct {
	ContextLines int
	MaxBytes     int
	Include      []string
	Exclude      []string
	// MergeBase turns "A..B" into "A...B" so a range shows only B's changes.
	MergeBase bool
}

// Mode is the kind of diff collected.
type Mode string

const (
	ModeUnstaged Mode = "unstaged"
	ModeStaged   Mode = "staged"
	ModeCommit   Mode = "commit"
	ModeRange    Mode = "range"
)

// DiffResult holds the collected diff and metadata.
type DiffResult struct {
	Diff      string
	Files     []string
	Mode      Mode
	Range     string
	Repo      RepoMeta
	Truncated bool
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// ErrEmptyDiff is returned when the selected changes produce no diff.
var ErrEmptyDiff = errors.New("no changes to review")

// Repo runs git in Dir, or in the current directory when Dir is empty.
type Repo struct {
	Dir string
}

// Meta collects repository metadata from git.
func (r Repo) Meta(ctx context.Context) (RepoMeta, error) {
	root, err := r.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("not a git repository: %w", err)
	}
	// A repository without commits has no HEAD; both lookups may fail.
	head, _ := r.git(ctx, "rev-parse", "HEAD")
	branch, _ := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// Diff selects the diff mode from spec: "" for unstaged changes, "staged"
// for the index, "A..B" or "A...B" for a range, anything else is a commit.
func (r Repo) Diff(ctx context.Context, spec string, opts DiffOptions) (DiffResult, error) {
	switch {
	case spec == "":
		return r.Unstaged(ctx, opts)
	case spec == "staged":
		return r.Staged(ctx, opts)
	case strings.Contains(spec, ".."):
		return r.Range(ctx, spec, opts)
	default:
		return r.Commit(ctx, spec, opts)
	}
}

// Unstaged returns the diff of working tree vs index.
func (r Repo) Unstaged(ctx context.Context, opts DiffOptions) (DiffResult, error) {
	diff, err := r.git(ctx, append([]string{"diff"}, buildDiffArgs(opts)...)...)
	if err != nil {
		return DiffResult{}, fmt.Errorf("git diff: %w", err)
	}
	return r.buildResult(ctx, diff, ModeUnstaged, "", opts)
}

// Staged returns the diff of index vs HEAD.
func (r Repo) Staged(ctx context.Context, opts DiffOptions) (DiffResult, error) {
	diff, err := r.git(ctx, append([]string{"diff", "--cached"}, buildDiffArgs(opts)...)...)
	if err != nil {
		return DiffResult{}, fmt.Errorf("git diff --cached: %w", err)
	}
	return r.buildResult(ctx, diff, ModeStaged, "", opts)
}

// Commit returns the diff a single commit introduced. A root commit is shown
// against the empty tree.
func (r Repo) Commit(ctx context.Context, sha string, opts DiffOptions) (DiffResult, error) {
	args := buildDiffArgs(opts)
	diff, err := r.git(ctx, append([]string{"diff", sha + "~1", sha}, args...)...)
	if err != nil {
		diff, err = r.git(ctx, append([]string{"show", "--format=", sha}, args...)...)
		if err != nil {
			return DiffResult{}, fmt.Errorf("git show %s: %w", sha, err)
		}
	}
	return r.buildResult(ctx, diff, ModeCommit, sha, opts)
}

// Range returns the combined diff for a revision range.
func (r Repo) Range(ctx context.Context, revRange string, opts DiffOptions) (DiffResult, error) {
	diffRange := revRange
	if opts.MergeBase && strings.Contains(revRange, "..") && !strings.Contains(revRange, "...") {
		diffRange = strings.Replace(revRange, "..", "...", 1)
	}
	diff, err := r.git(ctx, append([]string{"diff", diffRange}, buildDiffArgs(opts)...)...)
	if err != nil {
		return DiffResult{}, fmt.Errorf("git diff %s: %w", revRange, err)
	}
	return r.buildResult(ctx, diff, ModeRange, revRange, opts)
}

func buildDiffArgs(opts DiffOptions) []string {
	var args []string
	if opts.ContextLines > 0 {
		args = append(args, fmt.Sprintf("-U%d", opts.ContextLines))
	}
	args = append(args, "--")
	for _, p := range opts.Include {
		if p != "**/*" {
			args = append(args, p)
		}
	}
	return args
}

func (r Repo) buildResult(ctx context.Context, diff string, mode Mode, rangeStr string, opts DiffOptions) (DiffResult, error) {
	meta, err := r.Meta(ctx)
	if err != nil {
		meta = RepoMeta{}
	}

	files := extractFiles(diff)

	// Excluded files must not consume the byte budget.
	if len(opts.Exclude) > 0 {
		diff = FilterDiff(diff, opts.Exclude)
		files = FilterFiles(files, opts.Exclude)
	}
	if strings.TrimSpace(diff) == "" {
		return DiffResult{}, fmt.Errorf("%s diff: %w", mode, ErrEmptyDiff)
	}

	diff, truncated := Truncate(diff, opts.MaxBytes)

	return DiffResult{
		Diff:      diff,
		Files:     files,
		Mode:      mode,
		Range:     rangeStr,
		Repo:      meta,
		Truncated: truncated,
	}, nil
}

// Truncate cuts s to at most max bytes, on a line boundary when one is
// available, and appends a marker. A max of zero or less disables the limit.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i+1]
	}
	return cut + "\n... (truncated at max_bytes limit)\n", true
}

func extractFiles(diff string) []string {
	var files []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+++ b/") {
			f := strings.TrimPrefix(line, "+++ b/")
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}

// FilterDiff drops the sections of a unified diff whose path matches any of
// the exclude patterns.
func FilterDiff(diff string, excludes []string) string {
	return SelectDiff(diff, nil, excludes)
}

// SelectDiff keeps the sections of a unified diff whose path is included and
// not excluded. Sections without a path are kept.
func SelectDiff(diff string, includes, excludes []string) string {
	var kept []string
	for _, section := range SplitSections(diff) {
		path := SectionPath(section)
		if path == "" || selected(path, includes, excludes) {
			kept = append(kept, section)
		}
	}
	return strings.Join(kept, "")
}

// SplitSections splits a unified diff into per-file sections, each starting
// at its "diff --git" header. Concatenating the sections restores the diff.
func SplitSections(diff string) []string {
	var sections []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "diff --git") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

// SectionPath returns the post-image path of a diff section, falling back to
// the pre-image path for deletions.
func SectionPath(section string) string {
	var old string
	for _, line := range strings.Split(section, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ b/"):
			return strings.TrimPrefix(line, "+++ b/")
		case strings.HasPrefix(line, "--- a/"):
			old = strings.TrimPrefix(line, "--- a/")
		}
	}
	return old
}

// FilterFiles drops the paths matching any of the exclude patterns.
func FilterFiles(files []string, excludes []string) []string {
	return SelectFiles(files, nil, excludes)
}

// SelectFiles keeps the paths that are included and not excluded.
func SelectFiles(files []string, includes, excludes []string) []string {
	var result []string
	for _, f := range files {
		if selected(f, includes, excludes) {
			result = append(result, f)
		}
	}
	return result
}

func selected(path string, includes, excludes []string) bool {
	return Included(path, includes) && !MatchesAny(path, excludes)
}

// Included reports whether path falls under the include pathspecs. An empty
// list or "**/*" includes everything, and a bare directory includes the files
// below it as git does.
func Included(path string, includes []string) bool {
	if len(includes) == 0 {
		return true
	}
	for _, p := range includes {
		if p == "**/*" || MatchesAny(path, []string{p}) {
			return true
		}
		if dir := strings.TrimSuffix(p, "/"); dir != "" && strings.HasPrefix(path, dir+"/") {
			return true
		}
	}
	return false
}

// MatchesAny returns true if the path matches any of the given glob patterns.
// A leading "**/" matches at any depth and a trailing "/**" matches a whole
// directory.
func MatchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
			dir = strings.TrimPrefix(dir, "**/")
			if strings.HasPrefix(path, dir+"/") || strings.Contains(path, "/"+dir+"/") {
				return true
			}
		}
		clean := strings.TrimPrefix(pattern, "**/")
		if clean != pattern {
			if matched, err := filepath.Match(clean, filepath.Base(path)); err == nil && matched {
				return true
			}
			if matched, err := filepath.Match(clean, path); err == nil && matched {
				return true
			}
		}
	}
	return false
}

func (r Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
