package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/review"
)

var testRef = PRRef{Owner: "owner", Repo: "repo", Number: 42}

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	c, err := NewClient("test-token", server.URL+"/", server.Client())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewClient_RequiresToken(t *testing.T) {
	if _, err := NewClient("", "", nil); err == nil {
		t.Error("expected error without token")
	}
}

func TestNewClientFromEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("GITHUB_API_URL", "https://ghe.example.com/api/v3/")
	c, err := NewClientFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if c.apiURL != "https://ghe.example.com/api/v3" {
		t.Errorf("apiURL = %q", c.apiURL)
	}
}

func TestGetPRDiff(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization = %q, want %q", r.Header.Get("Authorization"), "Bearer test-token")
		}
		if r.Header.Get("Accept") != "application/vnd.github.v3.diff" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		if r.URL.Path != "/repos/owner/repo/pulls/42" {
			t.Errorf("Path = %q, want %q", r.URL.Path, "/repos/owner/repo/pulls/42")
		}
		w.Write([]byte("diff --git a/file.go b/file.go\n"))
	})

	diff, err := c.GetPRDiff(context.Background(), testRef)
	if err != nil {
		t.Fatalf("GetPRDiff error: %v", err)
	}
	if diff != "diff --git a/file.go b/file.go\n" {
		t.Errorf("diff = %q", diff)
	}
}

func TestGetPRDiff_404(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		w.Write([]byte(`{"message":"Not Found"}`))
	})

	_, err := c.GetPRDiff(context.Background(), PRRef{Owner: "owner", Repo: "repo", Number: 99})
	if err == nil {
		t.Fatal("Expected error for 404")
	}
	if !strings.Contains(err.Error(), "not found") || !strings.Contains(err.Error(), "/pulls/99") {
		t.Errorf("error = %q", err)
	}
}

func TestGetPRDiff_401(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"message":"Bad credentials"}`))
	})

	_, err := c.GetPRDiff(context.Background(), testRef)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if !strings.Contains(err.Error(), "Bad credentials") {
		t.Errorf("error = %q", err)
	}
}

func TestGetPRFiles(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/owner/repo/pulls/42/files" {
			t.Errorf("Path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]PRFile{{Filename: "main.go"}, {Filename: "util.go"}})
	})

	files, err := c.GetPRFiles(context.Background(), testRef)
	if err != nil {
		t.Fatalf("GetPRFiles error: %v", err)
	}
	if len(files) != 2 || files[0] != "main.go" || files[1] != "util.go" {
		t.Errorf("files = %v", files)
	}
}

func TestFetchPR(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/repos/owner/repo/pulls/42/files":
			json.NewEncoder(w).Encode([]PRFile{{Filename: "main.go"}})
		case r.Header.Get("Accept") == "application/vnd.github.v3.diff":
			w.Write([]byte("diff --git a/main.go b/main.go\n"))
		default:
			w.Write([]byte(`{"title":"Fix the thing","html_url":"https://github.com/owner/repo/pull/42"}`))
		}
	})

	pr, err := c.FetchPR(context.Background(), testRef)
	if err != nil {
		t.Fatalf("FetchPR error: %v", err)
	}
	if pr.Title != "Fix the thing" || pr.HTMLURL == "" {
		t.Errorf("metadata = %q %q", pr.Title, pr.HTMLURL)
	}
	if pr.Diff != "diff --git a/main.go b/main.go\n" {
		t.Errorf("diff = %q", pr.Diff)
	}
	if len(pr.Files) != 1 {
		t.Errorf("files = %v", pr.Files)
	}
}

func TestPostReview(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/repos/owner/repo/pulls/42/reviews" {
			t.Errorf("Path = %q", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var rev ReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&rev); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if rev.Event != "COMMENT" || len(rev.Comments) != 1 {
			t.Errorf("review = %+v", rev)
		}
		w.Write([]byte(`{"id":1}`))
	})

	err := c.PostReview(context.Background(), testRef, ReviewRequest{
		Body:     "summary",
		Event:    "COMMENT",
		Comments: []ReviewComment{{Path: "main.go", Line: 10, Body: "issue here"}},
	})
	if err != nil {
		t.Fatalf("PostReview error: %v", err)
	}
}

func TestPostReview_422(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(422)
		w.Write([]byte(`{"message":"line must be part of the diff"}`))
	})
	err := c.PostReview(context.Background(), testRef, ReviewRequest{Event: "COMMENT"})
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Errorf("err = %v, want 422 rejection", err)
	}
}

func TestParsePRRef(t *testing.T) {
	tests := []struct {
		in      string
		want    PRRef
		wantErr bool
	}{
		{"owner/repo#42", testRef, false},
		{"dshills/tandem.go#7", PRRef{"dshills", "tandem.go", 7}, false},
		{"https://github.com/owner/repo/pull/42", testRef, false},
		{"https://github.com/owner/repo/pull/42/files", testRef, false},
		{"owner/repo", PRRef{}, true},
		{"owner/repo#abc", PRRef{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePRRef(context.Background(), tt.in, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePRRef(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
	if testRef.String() != "owner/repo#42" {
		t.Errorf("String() = %q", testRef.String())
	}
}

func TestParseRemoteURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"HTTPS", "https://github.com/dshills/tandem.git", "dshills", "tandem", false},
		{"HTTPS no .git", "https://github.com/dshills/tandem", "dshills", "tandem", false},
		{"SSH", "git@github.com:dshills/tandem.git", "dshills", "tandem", false},
		{"SSH no .git", "git@github.com:dshills/tandem", "dshills", "tandem", false},
		{"invalid", "not-a-url", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRemoteURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("got %q/%q, want %q/%q", owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

func TestBuildReview(t *testing.T) {
	findings := []review.Finding{
		{
			Severity:   review.SeverityHigh,
			Category:   review.CategoryBug,
			Title:      "Null pointer",
			Message:    "Possible nil dereference",
			Suggestion: "Add nil check",
			Confidence: 0.9,
			Locations:  []review.Location{{Path: "main.go", Lines: review.LineRange{Start: 10, End: 12}}},
		},
		{
			Severity:   review.SeverityLow,
			Category:   review.CategoryStyle,
			Title:      "Naming",
			Message:    "Use camelCase",
			Confidence: 0.5,
			Locations:  []review.Location{},
		},
		{
			Severity:  review.SeverityMedium,
			Category:  review.CategoryCorrectness,
			Title:     "Outside diff",
			Message:   "Elsewhere",
			Locations: []review.Location{{Path: "other.go", Lines: review.LineRange{Start: 3}}},
		},
	}
	v := &review.Verdict{
		Outcome:  review.OutcomeAgreed,
		Rounds:   2,
		Senior:   llm.Cloud(llm.ProviderAnthropic, "claude-sonnet-4-5"),
		Junior:   llm.OnDevice("qwen"),
		Findings: findings,
		Summary:  review.ComputeSummary(findings),
	}

	rev := BuildReview(v, map[string]bool{"main.go": true})

	if rev.Event != "COMMENT" {
		t.Errorf("Event = %q, want COMMENT", rev.Event)
	}
	if len(rev.Comments) != 1 {
		t.Fatalf("Comments count = %d, want 1", len(rev.Comments))
	}
	if rev.Comments[0].Path != "main.go" || rev.Comments[0].Line != 12 {
		t.Errorf("comment = %+v, want main.go:12", rev.Comments[0])
	}
	for _, want := range []string{"| High | 1 |", "| Medium | 1 |", "reviewers agreed after 2 round(s)", "Naming", "Outside diff", "anthropic:claude-sonnet-4-5"} {
		if !strings.Contains(rev.Body, want) {
			t.Errorf("body missing %q:\n%s", want, rev.Body)
		}
	}
}
