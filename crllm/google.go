package crllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// googleAuditor implements Auditor on the Gemini API. The genai client wants
// a context at construction, so it is built per call instead.
type googleAuditor struct {
	apiKey      string
	model       string
	temperature float32
	maxTokens   int32
}

var _ Auditor = (*googleAuditor)(nil)

func newGoogle(cfg Config) (*googleAuditor, error) {
	key, err := cfg.key("GOOGLE_API_KEY")
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGoogleModel
	}

	return &googleAuditor{
		apiKey:      key,
		model:       model,
		temperature: float32(cfg.temperature()),
		maxTokens:   int32(cfg.maxTokens()),
	}, nil
}

// Audit implements Auditor.
func (a *googleAuditor) Audit(ctx context.Context, report string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  a.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("google: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(a.temperature),
		MaxOutputTokens: a.maxTokens,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	chat, err := client.Chats.Create(ctx, a.model, config, nil)
	if err != nil {
		return "", fmt.Errorf("google: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: Prompt(report)})
	if err != nil {
		return "", fmt.Errorf("google: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("google: no content generated")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	if text.Len() == 0 {
		return "", errors.New("google: no text content returned")
	}

	return text.String(), nil
}
