package review

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoFindings is returned when a reply contains no parsable findings array.
var ErrNoFindings = errors.New("no findings JSON array in reply")

// rawFinding is the JSON structure the senior reviewer is asked to emit.
type rawFinding struct {
	Severity   string   `json:"severity"`
	Category   string   `json:"category"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion"`
	Confidence float64  `json:"confidence"`
	Path       string   `json:"path"`
	StartLine  int      `json:"startLine"`
	EndLine    int      `json:"endLine"`
	Tags       []string `json:"tags"`
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n(.*?)```")

// ParseFindings extracts the findings array from a reply. A fenced JSON block
// is preferred (the last one wins); otherwise the outermost bracketed span is
// tried. An empty array is a valid result.
func ParseFindings(content string) ([]Finding, error) {
	var lastErr error

	matches := fenceRe.FindAllStringSubmatch(content, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		block := strings.TrimSpace(matches[i][1])
		if !strings.HasPrefix(block, "[") {
			continue
		}
		findings, err := decodeFindings(block)
		if err == nil {
			return findings, nil
		}
		lastErr = err
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start >= 0 && end > start {
		findings, err := decodeFindings(content[start : end+1])
		if err == nil {
			return findings, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFindings, lastErr)
	}
	return nil, ErrNoFindings
}

func decodeFindings(block string) ([]Finding, error) {
	var raw []rawFinding
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}

	findings := make([]Finding, 0, len(raw))
	for _, r := range raw {
		end := r.EndLine
		if end < r.StartLine {
			end = r.StartLine
		}
		f := Finding{
			Severity:   normalizeSeverity(r.Severity),
			Category:   Category(strings.ToLower(strings.TrimSpace(r.Category))),
			Title:      r.Title,
			Message:    r.Message,
			Suggestion: r.Suggestion,
			Confidence: r.Confidence,
			Tags:       r.Tags,
			Locations: []Location{
				{
					Path:  r.Path,
					Lines: LineRange{Start: r.StartLine, End: end},
				},
			},
		}
		f.ID = generateFindingID(f)
		findings = append(findings, f)
	}
	return findings, nil
}

func normalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "critical":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ExtractFindings parses the last senior turn of a transcript and applies the
// rules' severity overrides. It returns (nil, nil) when there is no senior turn.
func ExtractFindings(transcript []Turn, rules *Rules) ([]Finding, error) {
	t := lastTurn(transcript, Senior)
	if t == nil {
		return nil, nil
	}
	findings, err := ParseFindings(t.Message.Content)
	if err != nil {
		return nil, err
	}
	return ApplySeverityOverrides(findings, rules), nil
}

func generateFindingID(f Finding) string {
	var path string
	var line int
	if len(f.Locations) > 0 {
		path = f.Locations[0].Path
		line = f.Locations[0].Lines.Start
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", path, f.Title, line)))
	return fmt.Sprintf("%x", h[:8])
}
