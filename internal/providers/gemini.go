package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dshills/tandem/internal/llm"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com"

// Gemini implements llm.Provider for Google's Gemini API.
type Gemini struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(apiKey, baseURL string, client *http.Client) *Gemini {
	if baseURL == "" {
		baseURL = defaultGeminiURL
	}
	return &Gemini{apiKey: apiKey, baseURL: baseURL, client: client}
}

func (g *Gemini) ID() llm.ProviderID { return llm.ProviderGemini }

func (g *Gemini) SupportsModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "gemini-")
}

func (g *Gemini) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	var result geminiResponse
	if err := doJSON(ctx, g.client, g.ID(), g.endpoint(req.Model, "generateContent"), g.headers(), g.body(req), &result); err != nil {
		return llm.Response{}, err
	}
	if len(result.Candidates) == 0 {
		return llm.Response{}, malformed(g.ID(), "no candidates in response")
	}
	c := result.Candidates[0]
	return llm.Response{
		Model:        req.Model,
		Content:      c.text(),
		FinishReason: c.FinishReason,
		Usage:        result.UsageMetadata.toLLM(),
	}, nil
}

func (g *Gemini) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamDelta, error) {
	endpoint := g.endpoint(req.Model, "streamGenerateContent") + "?alt=sse"
	httpResp, err := postJSON(ctx, g.client, g.ID(), endpoint, g.headers(), g.body(req))
	if err != nil {
		return nil, err
	}

	return pumpSSE(ctx, g.ID(), httpResp, func(_ string, data []byte) ([]llm.StreamDelta, error) {
		var chunk geminiResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, malformed(g.ID(), "parsing stream chunk: %v", err)
		}
		if len(chunk.Candidates) == 0 {
			return nil, nil
		}
		c := chunk.Candidates[0]
		var out []llm.StreamDelta
		if text := c.text(); text != "" {
			out = append(out, llm.StreamDelta{Text: text})
		}
		// The final chunk carries the finish reason together with usage.
		if c.FinishReason != "" {
			out = append(out, llm.StreamDelta{Done: true, FinishReason: c.FinishReason, Usage: chunk.UsageMetadata.toLLM()})
		}
		return out, nil
	}), nil
}

func (g *Gemini) endpoint(model, method string) string {
	return joinURL(g.baseURL, fmt.Sprintf("/v1beta/models/%s:%s", url.PathEscape(model), method))
}

func (g *Gemini) headers() map[string]string {
	return map[string]string{"x-goog-api-key": g.apiKey}
}

// body maps assistant turns to the "model" role and lifts system messages
// into systemInstruction.
func (g *Gemini) body(req llm.Request) geminiRequest {
	body := geminiRequest{
		GenerationConfig: &geminiGenConfig{
			MaxOutputTokens: maxTokens(req.Sampling),
			Temperature:     req.Sampling.Temperature,
			TopP:            req.Sampling.TopP,
		},
	}
	var system []geminiPart
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, geminiPart{Text: m.Content})
		case llm.RoleAssistant:
			body.Contents = append(body.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		body.SystemInstruction = &geminiContent{Parts: system}
	}
	return body
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

func (c geminiCandidate) text() string {
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func (u geminiUsage) toLLM() *llm.TokenUsage {
	return &llm.TokenUsage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
}
