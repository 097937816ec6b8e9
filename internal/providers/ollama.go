package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dshills/tandem/internal/llm"
)

// DefaultOllamaURL is where a local Ollama daemon listens by default.
const DefaultOllamaURL = "http://localhost:11434"

// Ollama implements llm.Provider for on-device models served by Ollama's
// native chat API.
type Ollama struct {
	baseURL string
	client  *http.Client
}

// NewOllama creates an Ollama provider. baseURL may include a trailing /v1 or
// /api suffix, which is stripped.
func NewOllama(baseURL string, client *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1/chat/completions")
	baseURL = strings.TrimSuffix(baseURL, "/api/chat")
	baseURL = strings.TrimSuffix(baseURL, "/v1")
	baseURL = strings.TrimSuffix(baseURL, "/api")
	return &Ollama{baseURL: baseURL, client: client}
}

func (o *Ollama) ID() llm.ProviderID { return llm.ProviderOllama }

// SupportsModel accepts tags from the deepseek, qwen and llama families,
// with or without a namespace and size tag.
func (o *Ollama) SupportsModel(model string) bool {
	name := strings.ToLower(model)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return hasAnyPrefix(name, llm.OnDeviceFamilies...)
}

func (o *Ollama) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	var result ollamaChunk
	if err := doJSON(ctx, o.client, o.ID(), o.endpoint(), nil, o.body(req, false), &result); err != nil {
		return llm.Response{}, err
	}
	if result.Error != "" {
		return llm.Response{}, llm.NewFatal(o.ID(), 0, result.Error, nil)
	}
	return llm.Response{
		Model:        req.Model,
		Content:      result.Message.Content,
		FinishReason: result.DoneReason,
		Usage:        result.usage(),
	}, nil
}

// Stream reads newline-delimited JSON objects until one reports done.
func (o *Ollama) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamDelta, error) {
	httpResp, err := postJSON(ctx, o.client, o.ID(), o.endpoint(), nil, o.body(req, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamDelta)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		reader := bufio.NewReader(httpResp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) == 0 && err != nil {
				if !errors.Is(err, io.EOF) {
					streamErr(ctx, ch, o.ID(), err)
				}
				return
			}
			line = []byte(strings.TrimSpace(string(line)))
			if len(line) == 0 {
				continue
			}

			var chunk ollamaChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				send(ctx, ch, llm.StreamDelta{Err: malformed(o.ID(), "parsing stream line: %v", err)})
				return
			}
			if chunk.Error != "" {
				send(ctx, ch, llm.StreamDelta{Err: llm.NewFatal(o.ID(), 0, chunk.Error, nil)})
				return
			}
			d := llm.StreamDelta{Text: chunk.Message.Content}
			if chunk.Done {
				d.Done = true
				d.FinishReason = chunk.DoneReason
				d.Usage = chunk.usage()
			}
			if !send(ctx, ch, d) || d.Done {
				return
			}
		}
	}()
	return ch, nil
}

func (o *Ollama) endpoint() string {
	return o.baseURL + "/api/chat"
}

func (o *Ollama) body(req llm.Request, stream bool) ollamaRequest {
	body := ollamaRequest{
		Model:    req.Model,
		Messages: make([]openaiMessage, 0, len(req.Messages)),
		Stream:   stream,
		Options: &ollamaOptions{
			Temperature: req.Sampling.Temperature,
			TopP:        req.Sampling.TopP,
			NumPredict:  req.Sampling.MaxTokens,
		},
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openaiMessage{Role: string(m.Role), Content: m.Content})
	}
	return body
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
	// Stream is always sent; Ollama streams when the field is absent.
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaChunk struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (c ollamaChunk) usage() *llm.TokenUsage {
	return &llm.TokenUsage{
		PromptTokens:     c.PromptEvalCount,
		CompletionTokens: c.EvalCount,
		TotalTokens:      c.PromptEvalCount + c.EvalCount,
	}
}
