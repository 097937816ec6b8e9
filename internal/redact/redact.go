package redact

import (
	"regexp"
	"strings"

	"github.com/dshills/tandem/internal/gitctx"
)

const placeholder = "[REDACTED]"

const pathPlaceholder = placeholder + " (file content redacted by path policy)\n"

// secretPatterns are regex heuristics for common secret types.
var secretPatterns = []*regexp.Regexp{
	// Generic API keys after common key names
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// AWS secret access keys
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	// Secrets, tokens and passwords in quoted assignments
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	// Credentials embedded in connection strings
	regexp.MustCompile(`(?i)\b(postgres(ql)?|mysql|mongodb(\+srv)?|redis|amqps?)://[^/\s:@]+:[^/\s@]+@`),
	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	// Slack tokens
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	// Anthropic API keys
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	// OpenAI API keys
	regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9]{20,}`),
	// Google API keys
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	// Long hex strings in key/secret/token assignments
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	for _, pat := range secretPatterns {
		text = pat.ReplaceAllLiteralString(text, placeholder)
	}
	return text
}

// ShouldRedactPath reports whether path matches any redaction pattern.
func ShouldRedactPath(path string, patterns []string) bool {
	return path != "" && gitctx.MatchesAny(path, patterns)
}

// Content redacts a whole file. Files matching redactPaths are replaced
// entirely; others have their secrets scrubbed.
func Content(content, path string, redactPaths []string) string {
	if ShouldRedactPath(path, redactPaths) {
		return pathPlaceholder
	}
	return Secrets(content)
}

// Diff redacts a unified diff section by section. Sections for files
// matching redactPaths keep only their header lines; the rest have their
// secrets scrubbed.
func Diff(diff string, redactPaths []string) string {
	var sb strings.Builder
	for _, section := range gitctx.SplitSections(diff) {
		if !ShouldRedactPath(gitctx.SectionPath(section), redactPaths) {
			sb.WriteString(Secrets(section))
			continue
		}
		for _, line := range strings.SplitAfter(section, "\n") {
			if strings.HasPrefix(line, "@@") {
				break
			}
			sb.WriteString(line)
		}
		sb.WriteString(pathPlaceholder)
	}
	return sb.String()
}
