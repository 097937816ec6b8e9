package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dshills/tandem/internal/llm"
)

const defaultOpenAIURL = "https://api.openai.com"

// OpenAI implements llm.Provider for the OpenAI chat completions API.
type OpenAI struct {
	apiKey  string
	baseURL string
	custom  bool
	client  *http.Client
}

// NewOpenAI creates an OpenAI provider. A non-empty baseURL points it at an
// OpenAI-compatible server; such servers accept any model name.
func NewOpenAI(apiKey, baseURL string, client *http.Client) *OpenAI {
	o := &OpenAI{apiKey: apiKey, baseURL: defaultOpenAIURL, client: client}
	if baseURL != "" {
		o.baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1")
		o.custom = true
	}
	return o
}

func (o *OpenAI) ID() llm.ProviderID { return llm.ProviderOpenAI }

func (o *OpenAI) SupportsModel(model string) bool {
	if model == "" {
		return false
	}
	if o.custom {
		return true
	}
	return hasAnyPrefix(strings.ToLower(model), "gpt-", "o1", "o3", "o4", "chatgpt-", "codex")
}

func (o *OpenAI) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	var result openaiResponse
	if err := doJSON(ctx, o.client, o.ID(), o.endpoint(), o.headers(), o.body(req, false), &result); err != nil {
		return llm.Response{}, err
	}
	if len(result.Choices) == 0 {
		return llm.Response{}, malformed(o.ID(), "no choices in response")
	}
	return llm.Response{
		Model:        req.Model,
		Content:      result.Choices[0].Message.Content,
		FinishReason: result.Choices[0].FinishReason,
		Usage:        result.Usage.toLLM(),
	}, nil
}

func (o *OpenAI) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamDelta, error) {
	httpResp, err := postJSON(ctx, o.client, o.ID(), o.endpoint(), o.headers(), o.body(req, true))
	if err != nil {
		return nil, err
	}

	var finish string
	var usage *llm.TokenUsage
	return pumpSSE(ctx, o.ID(), httpResp, func(_ string, data []byte) ([]llm.StreamDelta, error) {
		if bytes.Equal(data, []byte("[DONE]")) {
			return []llm.StreamDelta{{Done: true, FinishReason: finish, Usage: usage}}, nil
		}
		var chunk openaiStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, malformed(o.ID(), "parsing stream chunk: %v", err)
		}
		if chunk.Error != nil {
			return nil, llm.NewFatal(o.ID(), 0, chunk.Error.Message, nil)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage.toLLM()
		}
		var out []llm.StreamDelta
		for _, c := range chunk.Choices {
			if c.FinishReason != "" {
				finish = c.FinishReason
			}
			if c.Delta.Content != "" {
				out = append(out, llm.StreamDelta{Text: c.Delta.Content})
			}
		}
		return out, nil
	}), nil
}

func (o *OpenAI) endpoint() string {
	return joinURL(o.baseURL, "/v1/chat/completions")
}

func (o *OpenAI) headers() map[string]string {
	if o.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + o.apiKey}
}

func (o *OpenAI) body(req llm.Request, stream bool) openaiRequest {
	body := openaiRequest{
		Model:       req.Model,
		Messages:    make([]openaiMessage, 0, len(req.Messages)),
		Temperature: req.Sampling.Temperature,
		TopP:        req.Sampling.TopP,
		Stream:      stream,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openaiMessage{Role: string(m.Role), Content: m.Content})
	}
	// Reasoning models reject max_tokens.
	if hasAnyPrefix(strings.ToLower(req.Model), "o1", "o3", "o4") {
		body.MaxCompletionTokens = maxTokens(req.Sampling)
	} else {
		body.MaxTokens = maxTokens(req.Sampling)
	}
	if stream {
		body.StreamOptions = &openaiStreamOptions{IncludeUsage: true}
	}
	return body
}

type openaiRequest struct {
	Model               string               `json:"model"`
	Messages            []openaiMessage      `json:"messages"`
	MaxTokens           int                  `json:"max_tokens,omitempty"`
	MaxCompletionTokens int                  `json:"max_completion_tokens,omitempty"`
	Temperature         *float64             `json:"temperature,omitempty"`
	TopP                *float64             `json:"top_p,omitempty"`
	Stream              bool                 `json:"stream,omitempty"`
	StreamOptions       *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u openaiUsage) toLLM() *llm.TokenUsage {
	return &llm.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
