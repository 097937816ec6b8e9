package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/review"
)

func sampleVerdict() *review.Verdict {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	findings := []review.Finding{
		{
			ID:         "abc",
			Severity:   review.SeverityHigh,
			Category:   review.CategoryBug,
			Title:      "Null pointer",
			Message:    "Dereference of a possibly nil pointer",
			Suggestion: "if p == nil { return }",
			Confidence: 0.9,
			Locations: []review.Location{
				{Path: "main.go", Lines: review.LineRange{Start: 10, End: 12}},
			},
		},
		{
			ID:         "def",
			Severity:   review.SeverityLow,
			Category:   review.CategoryStyle,
			Title:      "Long line",
			Message:    "Line exceeds 120 characters",
			Suggestion: "Break it up",
			Confidence: 0.8,
			Locations: []review.Location{
				{Path: "util.go", Lines: review.LineRange{Start: 5, End: 5}},
			},
		},
	}
	return &review.Verdict{
		ID:      "conv-1",
		Outcome: review.OutcomeAgreed,
		Rounds:  1,
		Senior:  llm.Cloud(llm.ProviderAnthropic, "claude-sonnet-4-5"),
		Junior:  llm.OnDevice("qwen"),
		Input: review.Input{
			Kind: review.KindFile,
			Source: review.Source{
				Path: "main.go",
				Repo: &review.RepoInfo{Root: "/tmp/repo", Branch: "main"},
			},
		},
		Transcript: []review.Turn{
			{Agent: review.Senior, Round: 1, Model: "claude-sonnet-4-5",
				Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "Found a nil dereference."}},
			{Agent: review.Junior, Round: 1, Model: "qwen2.5-coder",
				Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "Looks right. [AGREE]"}},
		},
		Findings:   findings,
		Summary:    review.ComputeSummary(findings),
		Usage:      llm.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}
}

func emptyVerdict() *review.Verdict {
	v := sampleVerdict()
	v.Findings = []review.Finding{}
	v.Summary = review.Summary{}
	return v
}

func TestGetWriter(t *testing.T) {
	tests := []struct {
		format string
		want   any
	}{
		{"text", &TextWriter{}},
		{"", &TextWriter{}},
		{"json", &JSONWriter{}},
		{"markdown", &MarkdownWriter{}},
		{"md", &MarkdownWriter{}},
		{"yaml", &YAMLWriter{}},
		{"sarif", &SARIFWriter{}},
	}
	for _, tt := range tests {
		w, err := GetWriter(tt.format)
		if err != nil {
			t.Errorf("GetWriter(%q) error: %v", tt.format, err)
			continue
		}
		if got, want := typeName(w), typeName(tt.want); got != want {
			t.Errorf("GetWriter(%q) = %s, want %s", tt.format, got, want)
		}
	}

	if _, err := GetWriter("html"); err == nil {
		t.Error("GetWriter(html) should fail")
	}
}

func TestFormatsAllSupported(t *testing.T) {
	for _, f := range Formats {
		if _, err := GetWriter(f); err != nil {
			t.Errorf("format %q listed but not supported: %v", f, err)
		}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *TextWriter:
		return "text"
	case *JSONWriter:
		return "json"
	case *MarkdownWriter:
		return "markdown"
	case *YAMLWriter:
		return "yaml"
	case *SARIFWriter:
		return "sarif"
	default:
		return "unknown"
	}
}

func TestWriteVerdict_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	if err := WriteVerdict(sampleVerdict(), "markdown", path); err != nil {
		t.Fatalf("WriteVerdict error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "## Tandem Code Review") {
		t.Errorf("unexpected file contents: %q", data)
	}
}

func TestWriteVerdict_BadFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := WriteVerdict(sampleVerdict(), "xml", path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be created for an unsupported format")
	}
}

func TestWriteVerdict_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.txt")
	if err := WriteVerdict(sampleVerdict(), "text", path); err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, os.ErrClosed }

func TestWriters_PropagateWriteErrors(t *testing.T) {
	for _, f := range []string{"text", "json", "markdown", "sarif"} {
		w, _ := GetWriter(f)
		if err := w.Write(failWriter{}, sampleVerdict()); err == nil {
			t.Errorf("%s writer swallowed write error", f)
		}
	}
}

func TestWriteAll_ConcatenatesDocumentFormats(t *testing.T) {
	var buf bytes.Buffer
	vs := []*review.Verdict{sampleVerdict(), sampleVerdict()}
	if err := WriteAll(&buf, &MarkdownWriter{}, vs); err != nil {
		t.Fatalf("WriteAll error: %v", err)
	}
	if n := strings.Count(buf.String(), "## Tandem Code Review"); n != 2 {
		t.Errorf("got %d markdown reports, want 2", n)
	}
}

func TestWriteAll_PropagatesWriteErrors(t *testing.T) {
	vs := []*review.Verdict{sampleVerdict(), sampleVerdict()}
	for _, f := range []string{"text", "json", "markdown", "sarif"} {
		w, _ := GetWriter(f)
		if err := WriteAll(failWriter{}, w, vs); err == nil {
			t.Errorf("%s batch swallowed write error", f)
		}
	}
}

func TestOutcomeLine(t *testing.T) {
	v := &review.Verdict{Outcome: review.OutcomeRoundsExhausted, Rounds: 3}
	if got := outcomeLine(v); got != "no agreement after 3 rounds" {
		t.Errorf("outcomeLine = %q", got)
	}
	v = &review.Verdict{Outcome: review.OutcomeAgreed, Rounds: 1}
	if got := outcomeLine(v); got != "reviewers agreed after 1 round" {
		t.Errorf("outcomeLine = %q", got)
	}
	v = &review.Verdict{Outcome: review.OutcomeAborted, Rounds: 2}
	if got := outcomeLine(v); got != "aborted in round 2" {
		t.Errorf("outcomeLine = %q", got)
	}
}

func TestWrapText(t *testing.T) {
	short := "fits on one line"
	if got := wrapText(short, 70); len(got) != 1 || got[0] != short {
		t.Errorf("wrapText(short) = %v", got)
	}
	long := strings.Repeat("word ", 30)
	lines := wrapText(long, 20)
	if len(lines) < 2 {
		t.Fatalf("expected wrapping, got %v", lines)
	}
	for _, l := range lines {
		if len(l) > 20 {
			t.Errorf("line %q exceeds width", l)
		}
	}
	var buf bytes.Buffer
	buf.WriteString(strings.Join(lines, " "))
	if buf.String() != strings.TrimSpace(long) {
		t.Error("wrapping should preserve words")
	}
}
