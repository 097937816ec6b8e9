package output

import (
	"io"
	"sort"
	"strings"

	"github.com/dshills/tandem/internal/review"
)

// MarkdownWriter outputs a PR-comment-friendly markdown report. The
// transcript is folded into a collapsible section after the findings.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, v *review.Verdict) error {
	ew := &errWriter{w: w}
	counts := v.Summary.Counts
	total := counts.High + counts.Medium + counts.Low

	ew.printf("## Tandem Code Review\n\n")
	ew.printf("**%s** reviewed by `%s` (senior) and `%s` (junior): %s.\n\n",
		inputLabel(v.Input), v.Senior, v.Junior, outcomeLine(v))
	if v.Error != "" {
		ew.printf("> :warning: %s\n\n", v.Error)
	}

	ew.printf("| Severity | Count |\n")
	ew.printf("|----------|-------|\n")
	ew.printf("| High     | %d    |\n", counts.High)
	ew.printf("| Medium   | %d    |\n", counts.Medium)
	ew.printf("| Low      | %d    |\n", counts.Low)
	ew.printf("| **Total** | **%d** |\n\n", total)

	if total == 0 {
		ew.println("No issues found. :white_check_mark:\n")
	}

	grouped := groupBySeverity(v.Findings)
	for _, sev := range []review.Severity{review.SeverityHigh, review.SeverityMedium, review.SeverityLow} {
		findings := grouped[sev]
		if len(findings) == 0 {
			continue
		}

		ew.printf("<details>\n<summary>%s %s (%d)</summary>\n\n",
			mdSeverityIcon(sev), strings.ToUpper(string(sev)), len(findings))

		sort.SliceStable(findings, func(i, j int) bool {
			return filePath(findings[i]) < filePath(findings[j])
		})

		for _, f := range findings {
			loc := primaryLocation(f)
			ew.printf("### %s\n\n", f.Title)
			ew.printf("**`%s:%d-%d`** | %s | Confidence: %.0f%%\n\n",
				loc.Path, loc.Lines.Start, loc.Lines.End, f.Category, f.Confidence*100)
			ew.printf("%s\n\n", f.Message)

			if f.Suggestion != "" {
				ew.printf("**Suggestion:**\n\n")
				if looksLikeCode(f.Suggestion) {
					ew.printf("```%s\n%s\n```\n\n", inferLang(loc.Path), f.Suggestion)
				} else {
					ew.printf("> %s\n\n", strings.ReplaceAll(f.Suggestion, "\n", "\n> "))
				}
			}

			ew.printf("---\n\n")
		}

		ew.printf("</details>\n\n")
	}

	if len(v.Transcript) > 0 {
		ew.printf("<details>\n<summary>Transcript (%d turns)</summary>\n\n", len(v.Transcript))
		for _, t := range v.Transcript {
			ew.printf("#### %s, round %d (`%s`)\n\n", strings.ToUpper(string(t.Agent)), t.Round, t.Model)
			ew.printf("%s\n\n", strings.TrimSpace(t.Message.Content))
		}
		ew.printf("</details>\n\n")
	}

	ew.printf("*Reviewed in %dms using %d tokens*\n", v.Duration().Milliseconds(), v.Usage.TotalTokens)

	return ew.err
}

func mdSeverityIcon(s review.Severity) string {
	switch s {
	case review.SeverityHigh:
		return ":red_circle:"
	case review.SeverityMedium:
		return ":orange_circle:"
	case review.SeverityLow:
		return ":yellow_circle:"
	default:
		return ":white_circle:"
	}
}

func looksLikeCode(s string) bool {
	codeIndicators := []string{
		"func ", "if ", "for ", "return ", "var ", "const ",
		"def ", "class ", "import ", "from ",
		"{", "}", "=>", "->", ":=", "==",
		"()", "[];",
	}
	for _, indicator := range codeIndicators {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}

var fenceLangs = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".jsx":  "jsx",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".cpp":  "cpp",
	".c":    "c",
	".cs":   "csharp",
	".php":  "php",
	".sh":   "bash",
	".sql":  "sql",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".tf":   "hcl",
}

func inferLang(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return fenceLangs[path[i:]]
	}
	return ""
}
