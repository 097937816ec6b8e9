package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dshills/tandem/internal/review"
)

// TextWriter outputs a human-readable report: the transcript followed by the
// senior reviewer's final findings.
type TextWriter struct {
	// HideTranscript prints only the findings.
	HideTranscript bool
}

func (t *TextWriter) Write(w io.Writer, v *review.Verdict) error {
	ew := &errWriter{w: w}

	ew.printf("Tandem Code Review: %s\n", inputLabel(v.Input))
	if repo := v.Input.Source.Repo; repo != nil && repo.Root != "" {
		ew.printf("Repository: %s (branch: %s)\n", repo.Root, repo.Branch)
	}
	ew.printf("Senior: %s | Junior: %s\n", v.Senior, v.Junior)
	ew.printf("Outcome: %s\n", outcomeLine(v))
	if v.Error != "" {
		ew.printf("Error: %s\n", v.Error)
	}
	ew.println(strings.Repeat("─", 60))

	if !t.HideTranscript {
		for _, turn := range v.Transcript {
			ew.printf("\n[%s, round %d] %s\n", strings.ToUpper(string(turn.Agent)), turn.Round, turn.Model)
			ew.println(strings.TrimRight(turn.Message.Content, "\n"))
		}
		if len(v.Transcript) > 0 {
			ew.printf("\n%s\n", strings.Repeat("─", 60))
		}
	}

	counts := v.Summary.Counts
	total := counts.High + counts.Medium + counts.Low
	ew.printf("Findings: %d total", total)
	if total > 0 {
		ew.printf(" (%d high, %d medium, %d low)", counts.High, counts.Medium, counts.Low)
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	if total == 0 {
		ew.println("\nNo issues found. Looks good!")
	}

	// Group by severity (high first), then by file
	grouped := groupBySeverity(v.Findings)
	for _, sev := range []review.Severity{review.SeverityHigh, review.SeverityMedium, review.SeverityLow} {
		findings := grouped[sev]
		if len(findings) == 0 {
			continue
		}

		ew.printf("\n%s %s\n", severityIcon(sev), strings.ToUpper(string(sev)))
		ew.println(strings.Repeat("─", 40))

		sort.SliceStable(findings, func(i, j int) bool {
			return filePath(findings[i]) < filePath(findings[j])
		})

		for _, f := range findings {
			loc := primaryLocation(f)
			ew.printf("\n  %s:%d-%d  %s\n", loc.Path, loc.Lines.Start, loc.Lines.End, f.Title)
			ew.printf("  Category: %s | Confidence: %.0f%%\n", f.Category, f.Confidence*100)

			for _, line := range wrapText(f.Message, 70) {
				ew.printf("    %s\n", line)
			}

			if f.Suggestion != "" {
				ew.println("  Suggestion:")
				for _, line := range wrapText(f.Suggestion, 70) {
					ew.printf("    %s\n", line)
				}
			}
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %dms (%d tokens: %d prompt, %d completion)\n",
		v.Duration().Milliseconds(), v.Usage.TotalTokens, v.Usage.PromptTokens, v.Usage.CompletionTokens)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func inputLabel(in review.Input) string {
	label := in.Source.Label()
	if label == "" {
		return string(in.Kind)
	}
	return fmt.Sprintf("%s %s", in.Kind, label)
}

// outcomeLine describes how the conversation ended.
func outcomeLine(v *review.Verdict) string {
	rounds := "rounds"
	if v.Rounds == 1 {
		rounds = "round"
	}
	switch v.Outcome {
	case review.OutcomeAgreed:
		return fmt.Sprintf("reviewers agreed after %d %s", v.Rounds, rounds)
	case review.OutcomeRoundsExhausted:
		return fmt.Sprintf("no agreement after %d %s", v.Rounds, rounds)
	case review.OutcomeAborted:
		return fmt.Sprintf("aborted in round %d", v.Rounds)
	default:
		return string(v.Outcome)
	}
}

func groupBySeverity(findings []review.Finding) map[review.Severity][]review.Finding {
	m := make(map[review.Severity][]review.Finding)
	for _, f := range findings {
		m[f.Severity] = append(m[f.Severity], f)
	}
	return m
}

func primaryLocation(f review.Finding) review.Location {
	if len(f.Locations) > 0 {
		return f.Locations[0]
	}
	return review.Location{Path: "unknown"}
}

func filePath(f review.Finding) string {
	if len(f.Locations) > 0 {
		return f.Locations[0].Path
	}
	return ""
}

func severityIcon(s review.Severity) string {
	switch s {
	case review.SeverityHigh:
		return "[!!]"
	case review.SeverityMedium:
		return "[!]"
	case review.SeverityLow:
		return "[-]"
	default:
		return "[?]"
	}
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
