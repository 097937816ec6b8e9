package review

import (
	"fmt"
	"strings"

	"github.com/dshills/tandem/internal/llm"
)

// DefaultSentinel is the agreement marker the junior reviewer emits.
const DefaultSentinel = "[AGREE]"

const seniorPrompt = `You are the senior reviewer in a two-person code review. A junior reviewer will check your work and challenge it; you will see their replies and may revise.

Rules:
1. Only review the code shown. For diffs, do not comment on unchanged code.
2. Focus on bugs, security issues, performance problems, and correctness. Avoid bikeshedding on style unless it impacts readability significantly.
3. Be concise and actionable. Every finding must include a concrete suggestion.
4. Reference line numbers from the code or diff hunks.
5. Rate severity as "low", "medium", or "high".
6. Rate your confidence from 0.0 to 1.0.
7. Categorize each finding as one of: bug, security, performance, correctness, style, maintainability, testing, docs.
8. When the junior reviewer raises a valid point, accept it and revise. When they are wrong, explain why briefly.

Every reply MUST end with your complete, current list of findings as a JSON array in a fenced block:

` + "```json" + `
[
  {
    "severity": "low|medium|high",
    "category": "bug|security|performance|correctness|style|maintainability|testing|docs",
    "title": "Short descriptive title",
    "message": "What is wrong and why it matters",
    "suggestion": "How to fix it, with code if helpful",
    "confidence": 0.0,
    "path": "relative/file/path",
    "startLine": 1,
    "endLine": 1,
    "tags": ["optional", "tags"]
  }
]
` + "```" + `

If there are no issues, end with an empty array: []`

const juniorPrompt = `You are the junior reviewer in a two-person code review. The senior reviewer has reviewed the code below and listed findings. Your job is to check that review against the code.

For each finding, say whether it is correct, a false positive, or rated at the wrong severity, and why. Point out real issues the senior missed, with file and line references. Keep your reply short and specific; do not repeat findings you agree with at length.

If you agree that the senior's current findings are complete and correct, include the exact marker %s in your reply. Do not include the marker while you still have objections.`

// Builder assembles per-turn requests for both reviewers. It is pure: the same
// arguments always produce the same request.
type Builder struct {
	Rules *Rules
	// Sentinel is the agreement marker explained to the junior. Empty means
	// DefaultSentinel.
	Sentinel string
	// MaxFindings caps the senior's findings list. Zero means no cap.
	MaxFindings int
}

// Build returns the request for agent's next turn. The transcript is replayed
// from the acting agent's point of view: its own turns as assistant messages,
// the other agent's turns as labelled user messages. Adjacent messages with
// the same role are merged so roles strictly alternate after the system
// prompt. Model and sampling are left for the caller to set.
func (b Builder) Build(agent Agent, transcript []Turn, in Input) llm.Request {
	msgs := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: b.systemPrompt(agent)},
		{Role: llm.RoleUser, Content: b.inputMessage(agent, in)},
	}
	for _, t := range transcript {
		if t.Agent == agent {
			msgs = append(msgs, llm.ChatMessage{Role: llm.RoleAssistant, Content: t.Message.Content})
			continue
		}
		msgs = append(msgs, llm.ChatMessage{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("%s reviewer (round %d):\n%s", label(t.Agent), t.Round, t.Message.Content),
		})
	}

	round := 1
	for _, t := range transcript {
		if t.Agent == Junior {
			round++
		}
	}

	return llm.Request{
		Messages: coalesce(msgs),
		Metadata: map[string]any{
			"agent": string(agent),
			"round": round,
			"input": string(in.Kind),
		},
	}
}

func (b Builder) sentinel() string {
	if b.Sentinel == "" {
		return DefaultSentinel
	}
	return b.Sentinel
}

func (b Builder) systemPrompt(agent Agent) string {
	if agent == Junior {
		return fmt.Sprintf(juniorPrompt, b.sentinel())
	}
	var sb strings.Builder
	sb.WriteString(seniorPrompt)
	if b.MaxFindings > 0 {
		fmt.Fprintf(&sb, "\n\nReturn at most %d findings.", b.MaxFindings)
	}
	if section := BuildRulesPromptSection(b.Rules); section != "" {
		sb.WriteString("\n")
		sb.WriteString(section)
	}
	return sb.String()
}

func (b Builder) inputMessage(agent Agent, in Input) string {
	var sb strings.Builder

	noun := kindNoun(in.Kind)
	if agent == Senior {
		fmt.Fprintf(&sb, "Review the following %s.\n\n", noun)
	} else {
		fmt.Fprintf(&sb, "This is the %s under review.\n\n", noun)
	}
	if src := in.Source.Label(); src != "" {
		fmt.Fprintf(&sb, "Source: %s\n", src)
	}
	if in.Source.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", in.Source.Title)
	}
	files := in.Source.Files
	if len(files) == 0 && in.Source.Path != "" {
		files = []string{in.Source.Path}
	}
	if langs := detectLanguages(files); len(langs) > 0 {
		fmt.Fprintf(&sb, "Languages: %s\n", strings.Join(langs, ", "))
	}
	if in.Source.Truncated {
		sb.WriteString("Note: the input was truncated to fit the size limit.\n")
	}

	marker := strings.ToUpper(noun)
	fmt.Fprintf(&sb, "\n--- BEGIN %s ---\n", marker)
	sb.WriteString(in.Content)
	fmt.Fprintf(&sb, "\n--- END %s ---\n", marker)
	return sb.String()
}

func kindNoun(k InputKind) string {
	switch k {
	case KindDiff:
		return "diff"
	case KindPullRequest:
		return "pull request diff"
	default:
		return "source file"
	}
}

func label(a Agent) string {
	if a == Senior {
		return "Senior"
	}
	return "Junior"
}

// coalesce merges adjacent messages that share a role.
func coalesce(msgs []llm.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}

func detectLanguages(files []string) []string {
	seen := make(map[string]bool)
	var langs []string
	for _, f := range files {
		lower := strings.ToLower(f)
		for _, e := range langExts {
			if strings.HasSuffix(lower, e.ext) && !seen[e.lang] {
				seen[e.lang] = true
				langs = append(langs, e.lang)
				break
			}
		}
	}
	return langs
}

// langExts is ordered so that ".tsx" is checked before ".ts".
var langExts = []struct {
	ext  string
	lang string
}{
	{".go", "Go"},
	{".py", "Python"},
	{".jsx", "JavaScript/React"},
	{".js", "JavaScript"},
	{".tsx", "TypeScript/React"},
	{".ts", "TypeScript"},
	{".rs", "Rust"},
	{".java", "Java"},
	{".rb", "Ruby"},
	{".cpp", "C++"},
	{".c", "C"},
	{".h", "C/C++"},
	{".cs", "C#"},
	{".php", "PHP"},
	{".swift", "Swift"},
	{".kt", "Kotlin"},
	{".sql", "SQL"},
	{".sh", "Shell"},
	{".yaml", "YAML"},
	{".yml", "YAML"},
	{".json", "JSON"},
	{".toml", "TOML"},
	{".tf", "Terraform"},
}
