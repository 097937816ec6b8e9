package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dshills/tandem/internal/llm"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
)

// Anthropic implements llm.Provider for Anthropic's Messages API.
type Anthropic struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(apiKey, baseURL string, client *http.Client) *Anthropic {
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	return &Anthropic{apiKey: apiKey, baseURL: baseURL, client: client}
}

func (a *Anthropic) ID() llm.ProviderID { return llm.ProviderAnthropic }

func (a *Anthropic) SupportsModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "claude-")
}

func (a *Anthropic) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	var result anthropicResponse
	if err := doJSON(ctx, a.client, a.ID(), a.endpoint(), a.headers(), a.body(req, false), &result); err != nil {
		return llm.Response{}, err
	}

	var content strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return llm.Response{
		Model:        req.Model,
		Content:      content.String(),
		FinishReason: result.StopReason,
		Usage:        result.Usage.toLLM(),
	}, nil
}

func (a *Anthropic) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamDelta, error) {
	httpResp, err := postJSON(ctx, a.client, a.ID(), a.endpoint(), a.headers(), a.body(req, true))
	if err != nil {
		return nil, err
	}

	var stop string
	usage := anthropicUsage{}
	return pumpSSE(ctx, a.ID(), httpResp, func(event string, data []byte) ([]llm.StreamDelta, error) {
		var ev anthropicStreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, malformed(a.ID(), "parsing %s event: %v", event, err)
		}
		if event == "" {
			event = ev.Type
		}

		switch event {
		case "message_start":
			if ev.Message != nil {
				usage.InputTokens = ev.Message.Usage.InputTokens
			}
		case "content_block_delta":
			if ev.Delta != nil && ev.Delta.Text != "" {
				return []llm.StreamDelta{{Text: ev.Delta.Text}}, nil
			}
		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				stop = ev.Delta.StopReason
			}
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "message_stop":
			return []llm.StreamDelta{{Done: true, FinishReason: stop, Usage: usage.toLLM()}}, nil
		case "error":
			return nil, a.streamError(ev.Error)
		}
		return nil, nil
	}), nil
}

func (a *Anthropic) streamError(e *anthropicError) error {
	if e == nil {
		return malformed(a.ID(), "error event without details")
	}
	switch e.Type {
	case "overloaded_error", "rate_limit_error", "api_error":
		return llm.NewTransient(a.ID(), 0, e.Type+": "+e.Message, nil)
	case "authentication_error", "permission_error":
		return llm.NewAuthError(a.ID(), 0, e.Message)
	default:
		return llm.NewFatal(a.ID(), 0, e.Type+": "+e.Message, nil)
	}
}

func (a *Anthropic) endpoint() string {
	return joinURL(a.baseURL, "/v1/messages")
}

func (a *Anthropic) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}
}

// body lifts system messages into the top-level system field; the Messages
// API only accepts user and assistant turns.
func (a *Anthropic) body(req llm.Request, stream bool) anthropicRequest {
	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens(req.Sampling),
		Temperature: req.Sampling.Temperature,
		TopP:        req.Sampling.TopP,
		Stream:      stream,
	}
	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			body.Messages = append(body.Messages, anthropicMessage{Role: "assistant", Content: m.Content})
		default:
			body.Messages = append(body.Messages, anthropicMessage{Role: "user", Content: m.Content})
		}
	}
	body.System = strings.Join(system, "\n\n")
	return body
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u anthropicUsage) toLLM() *llm.TokenUsage {
	return &llm.TokenUsage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage"`
	Error *anthropicError `json:"error"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
