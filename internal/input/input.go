package input

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/tandem/internal/gitctx"
	"github.com/dshills/tandem/internal/github"
	"github.com/dshills/tandem/internal/redact"
	"github.com/dshills/tandem/internal/review"
)

// ErrEmpty is returned when a source has nothing to review.
var ErrEmpty = errors.New("nothing to review")

// Source selects what to review. Details is a file path for file inputs, a
// diff spec ("", "staged", "A..B", or a commit) for diffs, and "owner/repo#N",
// a PR URL, or a bare number for pull requests.
type Source struct {
	Kind    review.InputKind
	Details string
}

// PRFetcher fetches pull requests. *github.Client implements it.
type PRFetcher interface {
	FetchPR(ctx context.Context, ref github.PRRef) (github.PullRequest, error)
}

// Options controls how inputs are read.
type Options struct {
	ContextLines int
	MaxBytes     int
	Include      []string
	Exclude      []string
	MergeBase    bool
	// Redact scrubs secrets and withholds files matching RedactPaths.
	Redact      bool
	RedactPaths []string
	// Dir is the git working directory; empty means the current directory.
	Dir string
	// GitHub fetches pull requests. Nil builds a client from GITHUB_TOKEN.
	GitHub PRFetcher
}

// Load reads one review input.
func Load(ctx context.Context, src Source, opts Options) (review.Input, error) {
	switch src.Kind {
	case review.KindFile:
		return loadFile(ctx, src.Details, opts)
	case review.KindDiff:
		return loadDiff(ctx, src.Details, opts)
	case review.KindPullRequest:
		return loadPR(ctx, src.Details, opts)
	default:
		return review.Input{}, fmt.Errorf("unknown input kind %q", src.Kind)
	}
}

// LoadFiles reads one file input per path, stopping at the first error.
func LoadFiles(ctx context.Context, paths []string, opts Options) ([]review.Input, error) {
	inputs := make([]review.Input, 0, len(paths))
	for _, p := range paths {
		in, err := Load(ctx, Source{Kind: review.KindFile, Details: p}, opts)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// sniffLen is how much of a file is checked for NUL bytes.
const sniffLen = 8000

func loadFile(ctx context.Context, path string, opts Options) (review.Input, error) {
	if path == "" {
		return review.Input{}, errors.New("file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return review.Input{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return review.Input{}, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	if bytes.IndexByte(data[:min(len(data), sniffLen)], 0) >= 0 {
		return review.Input{}, fmt.Errorf("%s: binary files cannot be reviewed", path)
	}

	content := string(data)
	if opts.Redact {
		content = redact.Content(content, filepath.ToSlash(path), opts.RedactPaths)
	}
	content, truncated := gitctx.Truncate(content, opts.MaxBytes)

	src := review.Source{
		Path:      path,
		Files:     []string{path},
		Truncated: truncated,
	}
	// Repository metadata is best effort; files outside a repository are fine.
	if meta, err := (gitctx.Repo{Dir: filepath.Dir(path)}).Meta(ctx); err == nil {
		src.Repo = repoInfo(meta)
	}
	return review.Input{Kind: review.KindFile, Content: content, Source: src}, nil
}

func loadDiff(ctx context.Context, spec string, opts Options) (review.Input, error) {
	res, err := gitctx.Repo{Dir: opts.Dir}.Diff(ctx, spec, gitctx.DiffOptions{
		ContextLines: opts.ContextLines,
		MaxBytes:     opts.MaxBytes,
		Include:      opts.Include,
		Exclude:      opts.Exclude,
		MergeBase:    opts.MergeBase,
	})
	if errors.Is(err, gitctx.ErrEmptyDiff) {
		return review.Input{}, fmt.Errorf("%w: %w", ErrEmpty, err)
	}
	if err != nil {
		return review.Input{}, err
	}

	content := res.Diff
	if opts.Redact {
		content = redact.Diff(content, opts.RedactPaths)
	}

	label := res.Range
	if label == "" {
		label = string(res.Mode)
	}
	return review.Input{
		Kind:    review.KindDiff,
		Content: content,
		Source: review.Source{
			Range:     label,
			Files:     res.Files,
			Repo:      repoInfo(res.Repo),
			Truncated: res.Truncated,
		},
	}, nil
}

func loadPR(ctx context.Context, details string, opts Options) (review.Input, error) {
	ref, err := github.ParsePRRef(ctx, details, opts.Dir)
	if err != nil {
		return review.Input{}, err
	}
	fetcher := opts.GitHub
	if fetcher == nil {
		c, err := github.NewClientFromEnv()
		if err != nil {
			return review.Input{}, err
		}
		fetcher = c
	}

	pr, err := fetcher.FetchPR(ctx, ref)
	if err != nil {
		return review.Input{}, fmt.Errorf("fetching %s: %w", ref, err)
	}

	// Git applies include pathspecs for local diffs; a fetched diff is
	// filtered here instead.
	diff := gitctx.SelectDiff(pr.Diff, opts.Include, opts.Exclude)
	files := gitctx.SelectFiles(pr.Files, opts.Include, opts.Exclude)
	if strings.TrimSpace(diff) == "" {
		return review.Input{}, fmt.Errorf("%s: %w", ref, ErrEmpty)
	}
	if opts.Redact {
		diff = redact.Diff(diff, opts.RedactPaths)
	}
	diff, truncated := gitctx.Truncate(diff, opts.MaxBytes)

	return review.Input{
		Kind:    review.KindPullRequest,
		Content: diff,
		Source: review.Source{
			PR:        ref.String(),
			Title:     pr.Title,
			Files:     files,
			Truncated: truncated,
		},
	}, nil
}

func repoInfo(m gitctx.RepoMeta) *review.RepoInfo {
	if m == (gitctx.RepoMeta{}) {
		return nil
	}
	return &review.RepoInfo{Root: m.Root, Head: m.Head, Branch: m.Branch}
}
