package output

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/dshills/tandem/internal/review"
)

// SARIFWriter outputs the final findings in SARIF v2.1.0 format. The
// transcript is not included.
type SARIFWriter struct {
	// Version is reported as the tool driver version. Empty means the
	// module version from the build info.
	Version string
}

func (s *SARIFWriter) Write(w io.Writer, v *review.Verdict) error {
	return s.WriteAll(w, []*review.Verdict{v})
}

// WriteAll writes one SARIF log with a run per verdict.
func (s *SARIFWriter) WriteAll(w io.Writer, verdicts []*review.Verdict) error {
	version := s.Version
	if version == "" {
		version = buildVersion()
	}
	data, err := json.MarshalIndent(buildSARIF(verdicts, version), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	return nil
}

// SARIF schema types (v2.1.0)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool       sarifTool      `json:"tool"`
	Results    []sarifResult  `json:"results"`
	Properties *sarifRunProps `json:"properties,omitempty"`
}

type sarifRunProps struct {
	Conversation string `json:"conversation"`
	Outcome      string `json:"outcome"`
	Rounds       int    `json:"rounds"`
	Senior       string `json:"senior"`
	Junior       string `json:"junior"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	ShortDescription sarifMessage        `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig  `json:"defaultConfiguration"`
	Properties       sarifRuleProperties `json:"properties,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifRuleProperties struct {
	Tags []string `json:"tags,omitempty"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
	Fixes     []sarifFix      `json:"fixes,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

type sarifFix struct {
	Description sarifMessage `json:"description"`
}

func buildSARIF(verdicts []*review.Verdict, version string) sarifLog {
	runs := make([]sarifRun, 0, len(verdicts))
	for _, v := range verdicts {
		runs = append(runs, buildRun(v, version))
	}
	return sarifLog{Version: "2.1.0", Schema: sarifSchema, Runs: runs}
}

func buildRun(v *review.Verdict, version string) sarifRun {
	rules := []sarifRule{}
	results := []sarifResult{}
	seen := make(map[string]bool)

	for _, f := range v.Findings {
		ruleID := generateRuleID(f)
		level := severityToLevel(f.Severity)

		// Rules appear once, in order of first use.
		if !seen[ruleID] {
			seen[ruleID] = true
			rules = append(rules, sarifRule{
				ID:               ruleID,
				Name:             string(f.Category),
				ShortDescription: sarifMessage{Text: f.Title},
				DefaultConfig:    sarifDefaultConfig{Level: level},
				Properties:       sarifRuleProperties{Tags: f.Tags},
			})
		}

		result := sarifResult{
			RuleID:  ruleID,
			Level:   level,
			Message: sarifMessage{Text: f.Message},
		}
		for _, loc := range f.Locations {
			result.Locations = append(result.Locations, sarifLocation{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: loc.Path},
					Region:           sarifRegion{StartLine: loc.Lines.Start, EndLine: loc.Lines.End},
				},
			})
		}
		if f.Suggestion != "" {
			result.Fixes = []sarifFix{{Description: sarifMessage{Text: f.Suggestion}}}
		}
		results = append(results, result)
	}

	return sarifRun{
		Tool: sarifTool{
			Driver: sarifDriver{
				Name:           "tandem",
				Version:        version,
				InformationURI: "https://github.com/dshills/tandem",
				Rules:          rules,
			},
		},
		Results: results,
		Properties: &sarifRunProps{
			Conversation: v.ID,
			Outcome:      string(v.Outcome),
			Rounds:       v.Rounds,
			Senior:       v.Senior.String(),
			Junior:       v.Junior.String(),
		},
	}
}

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"

var sarifLevels = map[review.Severity]string{
	review.SeverityHigh:   "error",
	review.SeverityMedium: "warning",
}

// severityToLevel maps finding severity to a SARIF level; anything below
// medium is a note.
func severityToLevel(s review.Severity) string {
	if level, ok := sarifLevels[s]; ok {
		return level
	}
	return "note"
}

// generateRuleID derives a rule ID from category and title, so the same
// finding maps to the same rule across conversations.
func generateRuleID(f review.Finding) string {
	data := fmt.Sprintf("%s/%s", f.Category, f.Title)
	h := sha256.Sum256([]byte(data))
	return fmt.Sprintf("tandem/%s/%x", f.Category, h[:4])
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}
