// Package anthropic provides a model.Model implementation using the
// Anthropic Messages API with streaming.
package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/parleyhq/parley/model"
)

// Options configures the Anthropic model adapter.
type Options struct {
	// Model is the fallback when a request carries no model name.
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model
// interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model. Image attachments are forwarded as
// base64 image blocks on the prompt message.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		stream := m.client.Messages.NewStreaming(ctx, params)

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				errCh <- fmt.Errorf("anthropic accumulate error: %w", err)
				return
			}
			switch eventVariant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if deltaVariant.Text == "" {
						continue
					}
					select {
					case <-ctx.Done():
						errCh <- ctx.Err()
						return
					case out <- model.Response{Text: deltaVariant.Text, Partial: true}:
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
			return
		}

		total := int(message.Usage.InputTokens + message.Usage.OutputTokens)
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- model.Response{Partial: false, TotalTokens: total}:
		}
	}()

	return out, errCh
}

// buildParams assembles the Messages API request: bounded history as
// alternating turns, then the prompt (with any image attachments) as the
// final user message.
func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	var messages []anthropic.MessageParam
	for _, msg := range req.History {
		if msg.Content == "" {
			continue
		}
		if msg.Role == "agent" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	var promptBlocks []anthropic.ContentBlockParamUnion
	if req.Prompt != "" {
		promptBlocks = append(promptBlocks, anthropic.NewTextBlock(req.Prompt))
	}
	for _, att := range req.Attachments {
		if !strings.HasPrefix(att.MIMEType, "image/") || len(att.Data) == 0 {
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(att.Data)
		promptBlocks = append(promptBlocks, anthropic.NewImageBlockBase64(att.MIMEType, encoded))
	}
	if len(promptBlocks) > 0 {
		messages = append(messages, anthropic.NewUserMessage(promptBlocks...))
	}

	modelName := anthropic.Model(req.ModelName)
	if req.ModelName == "" {
		modelName = m.opts.Model
	}

	params := anthropic.MessageNewParams{
		Model:       modelName,
		Messages:    messages,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}
	return params
}
