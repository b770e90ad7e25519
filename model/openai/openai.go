// Package openai provides a model.Model implementation using the OpenAI
// Chat Completions API with streaming. It adapts Parley's normalized
// Request/Response structures into the SDK's message format and back.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/parleyhq/parley/model"
)

// Options configure the OpenAI model adapter. Fields mirror a subset of the
// Chat Completion parameters intentionally kept minimal.
type Options struct {
	// Model is the fallback when a request carries no model name.
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic
// model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client, which reads
// its API key from the environment.
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model. Attachments are not forwarded; the Chat
// Completions text path is what this adapter covers.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		stream := m.client.Chat.Completions.NewStreaming(ctx, params)

		var totalTokens int
		for stream.Next() {
			ck := stream.Current()
			if ck.Usage.TotalTokens > 0 {
				totalTokens = int(ck.Usage.TotalTokens)
			}
			for _, ch := range ck.Choices {
				if ch.Delta.Content == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- model.Response{Text: ch.Delta.Content, Partial: true}:
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
			return
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- model.Response{Partial: false, TotalTokens: totalTokens}:
		}
	}()

	return out, errCh
}

// buildParams assembles the request parameters: system instruction first,
// then bounded history, then the user prompt.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}
	for _, msg := range req.History {
		if msg.Content == "" {
			continue
		}
		if msg.Role == "agent" {
			messages = append(messages, openai.AssistantMessage(msg.Content))
		} else {
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	if req.Prompt != "" {
		messages = append(messages, openai.UserMessage(req.Prompt))
	}

	modelName := req.ModelName
	if modelName == "" {
		modelName = m.opts.Model
	}

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               openai.ChatModel(modelName),
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
}
