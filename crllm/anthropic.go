package crllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicAuditor implements Auditor on the Anthropic messages API.
type anthropicAuditor struct {
	client      anthropic.Client
	model       anthropic.Model
	temperature float64
	maxTokens   int64
}

var _ Auditor = (*anthropicAuditor)(nil)

func newAnthropic(cfg Config) (*anthropicAuditor, error) {
	key, err := cfg.key("ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	return &anthropicAuditor{
		client:      anthropic.NewClient(option.WithAPIKey(key)),
		model:       anthropic.Model(model),
		temperature: cfg.temperature(),
		maxTokens:   int64(cfg.maxTokens()),
	}, nil
}

// Audit implements Auditor.
func (a *anthropicAuditor) Audit(ctx context.Context, report string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(Prompt(report)),
				},
			},
		},
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var text strings.Builder
	for _, content := range msg.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}

	if text.Len() == 0 {
		return "", errors.New("anthropic: no text content returned")
	}

	return text.String(), nil
}
