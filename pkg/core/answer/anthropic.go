package answer

import (
	"context"
	"io"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicBackend streams answers from the Anthropic Messages API.
type AnthropicBackend struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic builds a backend. Extra options (base URL, HTTP client) are
// passed to the SDK after the API key.
func NewAnthropic(apiKey, model string, opts ...option.RequestOption) *AnthropicBackend {
	if strings.TrimSpace(model) == "" {
		model = DefaultAnthropicModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicBackend{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) Stream(ctx context.Context, prompt Prompt) (Stream, error) {
	params := anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: int64(prompt.MaxTokens),
		Messages:  anthropicMessages(prompt.Messages),
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}
	stream := b.client.Messages.NewStreaming(ctx, params)
	// Request errors surface on the first Next.
	return &anthropicStream{events: stream}, nil
}

func anthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Text)
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}

// eventStream is the subset of the SDK's SSE stream used here.
type eventStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

type anthropicStream struct {
	events eventStream
}

func (s *anthropicStream) Next() (string, error) {
	for s.events.Next() {
		event := s.events.Current()
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
			return text.Text, nil
		}
	}
	if err := s.events.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *anthropicStream) Close() error {
	return s.events.Close()
}
