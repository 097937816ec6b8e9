package llm

// Role is the originator of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is a single message in a request or transcript.
type ChatMessage struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Sampling holds optional generation parameters. Nil pointers and a zero
// MaxTokens mean "provider default".
type Sampling struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty" yaml:"topP,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
}

// Request is the input for a single provider call. It is built fresh for every
// turn and must not be modified once handed to a provider.
type Request struct {
	Model    string
	Messages []ChatMessage
	Sampling Sampling
	Metadata map[string]any
}

// TokenUsage is token accounting reported by a provider.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens" yaml:"promptTokens"`
	CompletionTokens int `json:"completionTokens" yaml:"completionTokens"`
	TotalTokens      int `json:"totalTokens" yaml:"totalTokens"`
}

// Add accumulates u into t.
func (t *TokenUsage) Add(u *TokenUsage) {
	if u == nil {
		return
	}
	t.PromptTokens += u.PromptTokens
	t.CompletionTokens += u.CompletionTokens
	t.TotalTokens += u.TotalTokens
}

// Response is a completed (non-streaming or aggregated) model reply.
type Response struct {
	Model        string
	Content      string
	FinishReason string
	Usage        *TokenUsage
}

// StreamDelta is one element of a streamed reply. The last element has Done
// set; its Text may be empty. FinishReason and Usage are only meaningful on
// the final element. Err reports a failure inside the stream.
type StreamDelta struct {
	Text         string
	Done         bool
	FinishReason string
	Usage        *TokenUsage
	Err          error
}
