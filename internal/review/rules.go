package review

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Rules represents a rules pack loaded from --rules.
type Rules struct {
	Focus             []string          `json:"focus,omitempty" toml:"focus"`
	SeverityOverrides map[string]string `json:"severityOverrides,omitempty" toml:"severity_overrides"`
	Required          []RequiredCheck   `json:"required,omitempty" toml:"required"`
}

// RequiredCheck is a policy check that should always be enforced.
type RequiredCheck struct {
	ID   string `json:"id" toml:"id"`
	Text string `json:"text" toml:"text"`
}

// LoadRules loads a rules file from disk. Files ending in .toml are decoded as
// TOML, everything else as JSON. Returns nil Rules and nil error if path is
// empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var rules Rules
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &rules); err != nil {
			return nil, fmt.Errorf("parsing rules file: %w", err)
		}
	} else if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	if err := rules.validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

func (r *Rules) validate() error {
	for cat, sev := range r.SeverityOverrides {
		if SeverityRank(Severity(sev)) == 0 {
			return fmt.Errorf("rules: severity override for %q must be low, medium or high, got %q", cat, sev)
		}
	}
	return nil
}

// BuildRulesPromptSection returns additional prompt instructions derived from rules.
func BuildRulesPromptSection(rules *Rules) string {
	if rules == nil {
		return ""
	}

	var b strings.Builder

	if len(rules.Focus) > 0 {
		fmt.Fprintf(&b, "\nFocus areas: %s. Prioritize findings in these areas.\n",
			strings.Join(rules.Focus, ", "))
	}

	if len(rules.SeverityOverrides) > 0 {
		cats := make([]string, 0, len(rules.SeverityOverrides))
		for cat := range rules.SeverityOverrides {
			cats = append(cats, cat)
		}
		sort.Strings(cats)
		b.WriteString("\nSeverity policy:\n")
		for _, cat := range cats {
			fmt.Fprintf(&b, "- %s findings should be rated as %s severity.\n", cat, rules.SeverityOverrides[cat])
		}
	}

	if len(rules.Required) > 0 {
		b.WriteString("\nRequired checks (always evaluate these):\n")
		for _, req := range rules.Required {
			fmt.Fprintf(&b, "- [%s] %s\n", req.ID, req.Text)
		}
	}

	return b.String()
}

// ApplySeverityOverrides post-processes findings to enforce severity overrides from rules.
func ApplySeverityOverrides(findings []Finding, rules *Rules) []Finding {
	if rules == nil || len(rules.SeverityOverrides) == 0 {
		return findings
	}

	for i := range findings {
		cat := string(findings[i].Category)
		if override, ok := rules.SeverityOverrides[cat]; ok {
			findings[i].Severity = Severity(override)
		}
	}
	return findings
}
