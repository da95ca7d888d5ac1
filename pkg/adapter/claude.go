package adapter

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
)

const DefaultClaudeModel = "claude-sonnet-4-5"

// Claude is a language model provider backed by the Anthropic Messages API
type Claude struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

type ClaudeOption func(*Claude)

func WithClaudeModel(m string) ClaudeOption {
	return func(c *Claude) {
		c.model = m
	}
}

func WithClaudeMaxTokens(n int64) ClaudeOption {
	return func(c *Claude) {
		c.maxTokens = n
	}
}

func WithClaudeTemperature(t float64) ClaudeOption {
	return func(c *Claude) {
		c.temperature = t
	}
}

// NewClaude creates a new Claude API client
func NewClaude(apiKey string, opts ...ClaudeOption) (*Claude, error) {
	if apiKey == "" {
		return nil, goerr.New("anthropic API key is required", goerr.T(model.ErrTagConfig))
	}

	c := &Claude{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       DefaultClaudeModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Claude) Generate(ctx context.Context, instruction, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System: []anthropic.TextBlockParam{
			{Text: instruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to call claude",
			goerr.V("model", c.model),
			goerr.T(model.ErrTagGeneration))
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
