package input

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tandem/internal/github"
	"github.com/dshills/tandem/internal/review"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), "main.go", "package main\n\nvar key = \"sk-ant-REDACTED\"\n")

	in, err := Load(context.Background(), Source{Kind: review.KindFile, Details: path}, Options{Redact: true})
	require.NoError(t, err)

	assert.Equal(t, review.KindFile, in.Kind)
	assert.Equal(t, path, in.Source.Path)
	assert.Equal(t, []string{path}, in.Source.Files)
	assert.Contains(t, in.Content, "package main")
	assert.NotContains(t, in.Content, "sk-ant-")
	assert.False(t, in.Source.Truncated)
}

func TestLoad_FileWithoutRedaction(t *testing.T) {
	path := writeFile(t, t.TempDir(), "main.go", "var key = \"sk-ant-REDACTED\"\n")
	in, err := Load(context.Background(), Source{Kind: review.KindFile, Details: path}, Options{})
	require.NoError(t, err)
	assert.Contains(t, in.Content, "sk-ant-")
}

func TestLoad_FileRedactedByPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config/.env", "DB_PASSWORD=plain\n")
	in, err := Load(context.Background(), Source{Kind: review.KindFile, Details: path}, Options{
		Redact:      true,
		RedactPaths: []string{"**/.env"},
	})
	require.NoError(t, err)
	assert.NotContains(t, in.Content, "plain")
}

func TestLoad_FileTruncated(t *testing.T) {
	path := writeFile(t, t.TempDir(), "big.go", strings.Repeat("line of code\n", 100))
	in, err := Load(context.Background(), Source{Kind: review.KindFile, Details: path}, Options{MaxBytes: 64})
	require.NoError(t, err)
	assert.True(t, in.Source.Truncated)
	assert.Less(t, len(in.Content), 200)
}

func TestLoad_FileErrors(t *testing.T) {
	dir := t.TempDir()
	empty := writeFile(t, dir, "empty.go", "  \n")
	binary := writeFile(t, dir, "blob.bin", "ab\x00cd")

	tests := []struct {
		name string
		path string
		is   error
	}{
		{"missing", filepath.Join(dir, "nope.go"), os.ErrNotExist},
		{"empty", empty, ErrEmpty},
		{"binary", binary, nil},
		{"no path", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), Source{Kind: review.KindFile, Details: tt.path}, Options{})
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.go", "package a\n")
	b := writeFile(t, dir, "b.go", "package b\n")

	inputs, err := LoadFiles(context.Background(), []string{a, b}, Options{})
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, a, inputs[0].Source.Path)
	assert.Equal(t, b, inputs[1].Source.Path)

	_, err = LoadFiles(context.Background(), []string{a, filepath.Join(dir, "missing.go")}, Options{})
	assert.Error(t, err)
}

func TestLoad_UnknownKind(t *testing.T) {
	_, err := Load(context.Background(), Source{Kind: "snippet"}, Options{})
	assert.Error(t, err)
}

type fakeFetcher struct {
	pr  github.PullRequest
	err error
	got github.PRRef
}

func (f *fakeFetcher) FetchPR(_ context.Context, ref github.PRRef) (github.PullRequest, error) {
	f.got = ref
	return f.pr, f.err
}

const prDiff = `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1 +1,2 @@
 package main
+var token = "abcdefghijklmnop"
diff --git a/vendor/x.go b/vendor/x.go
--- a/vendor/x.go
+++ b/vendor/x.go
@@ -1 +1 @@
+package x
`

func TestLoad_PullRequest(t *testing.T) {
	f := &fakeFetcher{pr: github.PullRequest{
		Title: "Add token",
		Diff:  prDiff,
		Files: []string{"main.go", "vendor/x.go"},
	}}

	in, err := Load(context.Background(), Source{Kind: review.KindPullRequest, Details: "https://github.com/acme/app/pull/7"}, Options{
		Exclude: []string{"vendor/**"},
		Redact:  true,
		GitHub:  f,
	})
	require.NoError(t, err)

	assert.Equal(t, github.PRRef{Owner: "acme", Repo: "app", Number: 7}, f.got)
	assert.Equal(t, review.KindPullRequest, in.Kind)
	assert.Equal(t, "acme/app#7", in.Source.PR)
	assert.Equal(t, "Add token", in.Source.Title)
	assert.Equal(t, []string{"main.go"}, in.Source.Files)
	assert.NotContains(t, in.Content, "vendor/x.go")
	assert.NotContains(t, in.Content, "abcdefghijklmnop")
	assert.Contains(t, in.Content, "+++ b/main.go")
}

func TestLoad_PullRequestIncludePaths(t *testing.T) {
	f := &fakeFetcher{pr: github.PullRequest{
		Diff:  prDiff,
		Files: []string{"main.go", "vendor/x.go"},
	}}

	in, err := Load(context.Background(), Source{Kind: review.KindPullRequest, Details: "acme/app#7"}, Options{
		Include: []string{"vendor"},
		GitHub:  f,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor/x.go"}, in.Source.Files)
	assert.NotContains(t, in.Content, "main.go")
	assert.Contains(t, in.Content, "+++ b/vendor/x.go")

	_, err = Load(context.Background(), Source{Kind: review.KindPullRequest, Details: "acme/app#7"}, Options{
		Include: []string{"cmd/**"},
		GitHub:  f,
	})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoad_PullRequestErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Load(ctx, Source{Kind: review.KindPullRequest, Details: "not a pr"}, Options{GitHub: &fakeFetcher{}})
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = Load(ctx, Source{Kind: review.KindPullRequest, Details: "a/b#1"}, Options{GitHub: &fakeFetcher{err: boom}})
	assert.ErrorIs(t, err, boom)

	_, err = Load(ctx, Source{Kind: review.KindPullRequest, Details: "a/b#1"}, Options{
		GitHub:  &fakeFetcher{pr: github.PullRequest{Diff: prDiff}},
		Exclude: []string{"**/*.go"},
	})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoad_PullRequestNeedsToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	_, err := Load(context.Background(), Source{Kind: review.KindPullRequest, Details: "a/b#1"}, Options{})
	assert.ErrorContains(t, err, "GITHUB_TOKEN")
}

func gitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-q")
	writeFile(t, dir, "main.go", "package main\n")
	run("add", "-A")
	run("commit", "-q", "-m", "init")
	return dir
}

func TestLoad_Diff(t *testing.T) {
	dir := gitRepo(t)
	writeFile(t, dir, "main.go", "package main\n\nvar password = \"correct-horse-battery\"\n")

	in, err := Load(context.Background(), Source{Kind: review.KindDiff}, Options{Dir: dir, Redact: true, ContextLines: 3})
	require.NoError(t, err)

	assert.Equal(t, review.KindDiff, in.Kind)
	assert.Equal(t, "unstaged", in.Source.Range)
	assert.Equal(t, []string{"main.go"}, in.Source.Files)
	require.NotNil(t, in.Source.Repo)
	assert.NotEmpty(t, in.Source.Repo.Head)
	assert.NotContains(t, in.Content, "correct-horse-battery")
}

func TestLoad_DiffEmpty(t *testing.T) {
	dir := gitRepo(t)
	_, err := Load(context.Background(), Source{Kind: review.KindDiff, Details: "staged"}, Options{Dir: dir})
	assert.ErrorIs(t, err, ErrEmpty)
}
