package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/zulandar/proctor/internal/config"
)

// OpenAI generates through any OpenAI-compatible chat completion endpoint
// (OpenAI, Groq, a local gateway).
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// NewOpenAI builds a client from cfg.
func NewOpenAI(cfg config.TextGenConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

// Generate sends one chat completion in JSON mode.
func (o *OpenAI) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	system := req.System
	if req.Schema != "" {
		system += "\n\nRespond with a single JSON object matching this JSON schema:\n" + req.Schema
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: %v", ErrTimeout, req.Task, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, req.Task, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s: no choices", ErrMalformed, req.Task)
	}

	content := extractJSON(resp.Choices[0].Message.Content)
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("%w: %s: content is not JSON", ErrMalformed, req.Task)
	}
	return json.RawMessage(content), nil
}
