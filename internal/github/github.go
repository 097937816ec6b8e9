package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/tandem/internal/review"
)

const defaultAPIURL = "https://api.github.com"

// ErrUnauthorized is returned when GitHub rejects the token.
var ErrUnauthorized = errors.New("github: authentication failed")

// Client provides access to the GitHub REST API.
type Client struct {
	token   string
	apiURL  string
	httpCli *http.Client
}

// NewClient creates a GitHub client. A nil httpCli gets a 60s timeout.
func NewClient(token, apiURL string, httpCli *http.Client) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN environment variable is not set")
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if httpCli == nil {
		httpCli = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		token:   token,
		apiURL:  strings.TrimRight(apiURL, "/"),
		httpCli: httpCli,
	}, nil
}

// NewClientFromEnv creates a client from GITHUB_TOKEN and GITHUB_API_URL.
func NewClientFromEnv() (*Client, error) {
	return NewClient(os.Getenv("GITHUB_TOKEN"), os.Getenv("GITHUB_API_URL"), nil)
}

// PRRef identifies a pull request.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

func (r PRRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

var (
	prShortRe = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)#(\d+)$`)
	prURLRe   = regexp.MustCompile(`^https?://[^/]+/([\w.-]+)/([\w.-]+)/pulls?/(\d+)`)
	prNumRe   = regexp.MustCompile(`^#?(\d+)$`)
)

// ParsePRRef accepts "owner/repo#N" or a pull request URL. A bare "N" or
// "#N" is resolved against the origin remote of the repository in dir.
func ParsePRRef(ctx context.Context, s, dir string) (PRRef, error) {
	s = strings.TrimSpace(s)
	if m := prShortRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[3])
		return PRRef{Owner: m[1], Repo: m[2], Number: n}, nil
	}
	if m := prURLRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[3])
		return PRRef{Owner: m[1], Repo: m[2], Number: n}, nil
	}
	if m := prNumRe.FindStringSubmatch(s); m != nil {
		owner, repo, err := DetectRepo(ctx, dir)
		if err != nil {
			return PRRef{}, err
		}
		n, _ := strconv.Atoi(m[1])
		return PRRef{Owner: owner, Repo: repo, Number: n}, nil
	}
	return PRRef{}, fmt.Errorf("invalid pull request %q: expected owner/repo#N or a pull request URL", s)
}

// PullRequest is a fetched pull request with its unified diff.
type PullRequest struct {
	Ref     PRRef
	Title   string
	HTMLURL string
	Diff    string
	Files   []string
}

// FetchPR fetches a pull request's title, diff, and changed files.
func (c *Client) FetchPR(ctx context.Context, ref PRRef) (PullRequest, error) {
	pr := PullRequest{Ref: ref}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var meta struct {
			Title   string `json:"title"`
			HTMLURL string `json:"html_url"`
		}
		if err := c.getJSON(gctx, c.prURL(ref, ""), &meta); err != nil {
			return err
		}
		pr.Title, pr.HTMLURL = meta.Title, meta.HTMLURL
		return nil
	})
	g.Go(func() error {
		diff, err := c.GetPRDiff(gctx, ref)
		pr.Diff = diff
		return err
	})
	g.Go(func() error {
		files, err := c.GetPRFiles(gctx, ref)
		pr.Files = files
		return err
	})
	if err := g.Wait(); err != nil {
		return PullRequest{}, err
	}
	return pr, nil
}

// GetPRDiff fetches the diff for a pull request.
func (c *Client) GetPRDiff(ctx context.Context, ref PRRef) (string, error) {
	body, err := c.get(ctx, c.prURL(ref, ""), "application/vnd.github.v3.diff")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// PRFile represents a file changed in a pull request.
type PRFile struct {
	Filename string `json:"filename"`
}

// GetPRFiles fetches the list of files changed in a pull request.
func (c *Client) GetPRFiles(ctx context.Context, ref PRRef) ([]string, error) {
	var files []PRFile
	if err := c.getJSON(ctx, c.prURL(ref, "/files?per_page=100"), &files); err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
	}
	return names, nil
}

// ReviewComment represents an inline comment on a PR review.
type ReviewComment struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Body string `json:"body"`
}

// ReviewRequest represents a PR review to post.
type ReviewRequest struct {
	Body     string          `json:"body"`
	Event    string          `json:"event"`
	Comments []ReviewComment `json:"comments"`
}

// PostReview posts a pull request review with inline comments.
func (c *Client) PostReview(ctx context.Context, ref PRRef, rev ReviewRequest) error {
	payload, err := json.Marshal(rev)
	if err != nil {
		return fmt.Errorf("marshaling review: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.prURL(ref, "/reviews"), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")

	resp, body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("posting review: %w", err)
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return fmt.Errorf("GitHub rejected review (422): %s", string(body))
	}
	return checkStatus(resp.StatusCode, body)
}

func (c *Client) prURL(ref PRRef, suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s/pulls/%d%s", c.apiURL, ref.Owner, ref.Repo, ref.Number, suffix)
}

func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", accept)
	resp, body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("pull request not found: %s", strings.TrimPrefix(url, c.apiURL))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, checkStatus(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	body, err := c.get(ctx, url, "application/vnd.github.v3+json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp, body, nil
}

func checkStatus(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(body)))
	case status < 200 || status >= 300:
		return fmt.Errorf("GitHub API error (status %d): %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

// BuildReview converts a verdict into a GitHub PR review request. Findings
// located in a file of the diff become inline comments; the rest go into the
// summary body.
func BuildReview(v *review.Verdict, diffFiles map[string]bool) ReviewRequest {
	var bodyComments []string
	var comments []ReviewComment

	for _, f := range v.Findings {
		if len(f.Locations) > 0 && diffFiles[f.Locations[0].Path] {
			loc := f.Locations[0]
			line := loc.Lines.End
			if line == 0 {
				line = loc.Lines.Start
			}
			if line > 0 {
				comments = append(comments, ReviewComment{
					Path: loc.Path,
					Line: line,
					Body: formatInlineComment(f),
				})
				continue
			}
		}
		bodyComments = append(bodyComments, formatFindingBody(f))
	}

	c := v.Summary.Counts
	var sb strings.Builder
	sb.WriteString("## Tandem Code Review\n\n")
	fmt.Fprintf(&sb, "Senior `%s`, junior `%s`: %s after %d round(s).\n\n", v.Senior, v.Junior, outcomeText(v.Outcome), v.Rounds)
	sb.WriteString("| Severity | Count |\n|----------|-------|\n")
	fmt.Fprintf(&sb, "| High | %d |\n", c.High)
	fmt.Fprintf(&sb, "| Medium | %d |\n", c.Medium)
	fmt.Fprintf(&sb, "| Low | %d |\n\n", c.Low)

	if len(bodyComments) > 0 {
		sb.WriteString("### General Findings\n\n")
		for _, bc := range bodyComments {
			sb.WriteString(bc)
			sb.WriteString("\n\n")
		}
	}

	return ReviewRequest{
		Body:     sb.String(),
		Event:    "COMMENT",
		Comments: comments,
	}
}

func outcomeText(o review.Outcome) string {
	switch o {
	case review.OutcomeAgreed:
		return "reviewers agreed"
	case review.OutcomeRoundsExhausted:
		return "no agreement"
	default:
		return "review aborted"
	}
}

func formatInlineComment(f review.Finding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** (%s, %s, confidence: %.0f%%)\n\n", f.Title, f.Severity, f.Category, f.Confidence*100)
	sb.WriteString(f.Message)
	if f.Suggestion != "" {
		fmt.Fprintf(&sb, "\n\n**Suggestion:**\n```\n%s\n```", f.Suggestion)
	}
	return sb.String()
}

func formatFindingBody(f review.Finding) string {
	s := fmt.Sprintf("- **%s** (%s, %s): %s", f.Title, f.Severity, f.Category, f.Message)
	if f.Suggestion != "" {
		s += fmt.Sprintf(" *Suggestion: %s*", f.Suggestion)
	}
	return s
}

var (
	httpsRemoteRe = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/.\s]+)`)
	sshRemoteRe   = regexp.MustCompile(`[^@]+@[^:]+:([^/]+)/([^/.\s]+)`)
)

// DetectRepo parses owner/repo from the origin remote of the repository in
// dir (the current directory when empty).
func DetectRepo(ctx context.Context, dir string) (owner, repo string, err error) {
	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", "origin")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", "", fmt.Errorf("cannot detect repo: git remote get-url origin failed: %w", err)
	}
	return ParseRemoteURL(strings.TrimSpace(string(out)))
}

// ParseRemoteURL extracts owner/repo from a git remote URL.
func ParseRemoteURL(url string) (owner, repo string, err error) {
	url = strings.TrimSuffix(url, ".git")

	if m := httpsRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	if m := sshRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	return "", "", fmt.Errorf("cannot parse owner/repo from remote URL: %s", url)
}
