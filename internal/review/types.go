package review

import (
	"time"

	"github.com/dshills/tandem/internal/llm"
)

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// MeetsThreshold returns true if severity is at or above the threshold.
func MeetsThreshold(s Severity, threshold string) bool {
	if threshold == "none" || threshold == "" {
		return false
	}
	return SeverityRank(s) >= SeverityRank(Severity(threshold))
}

// Category represents the type of finding.
type Category string

const (
	CategoryBug             Category = "bug"
	CategorySecurity        Category = "security"
	CategoryPerformance     Category = "performance"
	CategoryCorrectness     Category = "correctness"
	CategoryStyle           Category = "style"
	CategoryMaintainability Category = "maintainability"
	CategoryTesting         Category = "testing"
	CategoryDocs            Category = "docs"
)

// Location represents where a finding was detected.
type Location struct {
	Path    string    `json:"path" yaml:"path"`
	Lines   LineRange `json:"lines" yaml:"lines"`
	Snippet string    `json:"snippet,omitempty" yaml:"snippet,omitempty"`
}

// LineRange represents a range of line numbers.
type LineRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Finding represents a single code review finding agreed on (or left
// standing) by the senior reviewer.
type Finding struct {
	ID         string     `json:"id" yaml:"id"`
	Severity   Severity   `json:"severity" yaml:"severity"`
	Category   Category   `json:"category" yaml:"category"`
	Title      string     `json:"title" yaml:"title"`
	Message    string     `json:"message" yaml:"message"`
	Suggestion string     `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Confidence float64    `json:"confidence" yaml:"confidence"`
	Locations  []Location `json:"locations" yaml:"locations"`
	Tags       []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// SeverityCounts holds counts by severity level.
type SeverityCounts struct {
	Low    int `json:"low" yaml:"low"`
	Medium int `json:"medium" yaml:"medium"`
	High   int `json:"high" yaml:"high"`
}

// Summary provides an overview of findings.
type Summary struct {
	Counts          SeverityCounts `json:"counts" yaml:"counts"`
	HighestSeverity Severity       `json:"highestSeverity" yaml:"highestSeverity"`
}

// ComputeSummary calculates the summary from findings.
func ComputeSummary(findings []Finding) Summary {
	var s Summary
	for _, f := range findings {
		switch f.Severity {
		case SeverityLow:
			s.Counts.Low++
		case SeverityMedium:
			s.Counts.Medium++
		case SeverityHigh:
			s.Counts.High++
		}
		if SeverityRank(f.Severity) > SeverityRank(s.HighestSeverity) {
			s.HighestSeverity = f.Severity
		}
	}
	return s
}

// InputKind is the kind of code under review.
type InputKind string

const (
	KindFile        InputKind = "file"
	KindDiff        InputKind = "diff"
	KindPullRequest InputKind = "pull_request"
)

// RepoInfo contains repository metadata.
type RepoInfo struct {
	Root   string `json:"root,omitempty" yaml:"root,omitempty"`
	Head   string `json:"head,omitempty" yaml:"head,omitempty"`
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

// Source describes where an input came from. Exactly one of Path, Range or
// PR is set, matching the input kind.
type Source struct {
	Path      string    `json:"path,omitempty" yaml:"path,omitempty"`
	Range     string    `json:"range,omitempty" yaml:"range,omitempty"`
	PR        string    `json:"pr,omitempty" yaml:"pr,omitempty"`
	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
	Files     []string  `json:"files,omitempty" yaml:"files,omitempty"`
	Repo      *RepoInfo `json:"repo,omitempty" yaml:"repo,omitempty"`
	Truncated bool      `json:"truncated,omitempty" yaml:"truncated,omitempty"`
}

// Label returns a short human-readable name for the source.
func (s Source) Label() string {
	switch {
	case s.PR != "":
		return s.PR
	case s.Range != "":
		return s.Range
	default:
		return s.Path
	}
}

// Input is the code under review. It is passed unmodified to the prompt
// builder on every turn.
type Input struct {
	Kind    InputKind `json:"kind" yaml:"kind"`
	Content string    `json:"-" yaml:"-"`
	Source  Source    `json:"source" yaml:"source"`
}

// Agent is one of the two reviewer roles.
type Agent string

const (
	Senior Agent = "senior"
	Junior Agent = "junior"
)

// Other returns the opposite agent.
func (a Agent) Other() Agent {
	if a == Senior {
		return Junior
	}
	return Senior
}

// Turn is one completed agent reply in a conversation transcript. Its message
// role is always assistant.
type Turn struct {
	Agent        Agent           `json:"agent" yaml:"agent"`
	Round        int             `json:"round" yaml:"round"`
	Message      llm.ChatMessage `json:"message" yaml:"message"`
	Provider     llm.ProviderID  `json:"provider" yaml:"provider"`
	Model        string          `json:"model" yaml:"model"`
	FinishReason string          `json:"finishReason,omitempty" yaml:"finishReason,omitempty"`
	Usage        *llm.TokenUsage `json:"usage,omitempty" yaml:"usage,omitempty"`
}

// Outcome is how a conversation ended.
type Outcome string

const (
	OutcomeAgreed          Outcome = "agreed"
	OutcomeRoundsExhausted Outcome = "rounds_exhausted"
	OutcomeAborted         Outcome = "aborted"
)

// Verdict is the result of one review conversation.
type Verdict struct {
	ID         string         `json:"id" yaml:"id"`
	Outcome    Outcome        `json:"outcome" yaml:"outcome"`
	Rounds     int            `json:"rounds" yaml:"rounds"`
	Senior     llm.Backend    `json:"senior" yaml:"senior"`
	Junior     llm.Backend    `json:"junior" yaml:"junior"`
	Input      Input          `json:"input" yaml:"input"`
	Transcript []Turn         `json:"transcript" yaml:"transcript"`
	Findings   []Finding      `json:"findings" yaml:"findings"`
	Summary    Summary        `json:"summary" yaml:"summary"`
	Usage      llm.TokenUsage `json:"usage" yaml:"usage"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt" yaml:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt" yaml:"finishedAt"`
}

// Duration returns how long the conversation ran.
func (v *Verdict) Duration() time.Duration {
	if v.FinishedAt.IsZero() {
		return 0
	}
	return v.FinishedAt.Sub(v.StartedAt)
}

// LastTurn returns the most recent turn by agent, or nil.
func (v *Verdict) LastTurn(agent Agent) *Turn {
	return lastTurn(v.Transcript, agent)
}

func lastTurn(transcript []Turn, agent Agent) *Turn {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Agent == agent {
			return &transcript[i]
		}
	}
	return nil
}
