package crllm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openAIAuditor implements Auditor on the OpenAI chat completions API.
type openAIAuditor struct {
	client    *openai.Client
	model     string
	maxTokens int
}

var _ Auditor = (*openAIAuditor)(nil)

func newOpenAI(cfg Config) (*openAIAuditor, error) {
	key, err := cfg.key("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &openAIAuditor{
		client:    openai.NewClient(key),
		model:     model,
		maxTokens: cfg.maxTokens(),
	}, nil
}

// Audit implements Auditor. Temperature is deliberately not sent: the default
// reasoning models reject anything but their fixed value.
func (a *openAIAuditor) Audit(ctx context.Context, report string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Prompt(report)},
		},
		MaxCompletionTokens: a.maxTokens,
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}
