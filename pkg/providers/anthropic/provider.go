// Package anthropicprovider generates customer replies by calling the
// Anthropic API directly, as an alternative to delegating reply
// generation to the business backend.
package anthropicprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultBaseURL = "https://api.anthropic.com"

const defaultSystemPrompt = "Eres el asistente virtual de un negocio. " +
	"Responde al cliente de forma breve, amable y útil. " +
	"Si no puedes ayudar, indica que un humano responderá pronto."

type Provider struct {
	client *anthropic.Client
	model  string
	system string
}

func NewProvider(apiKey, apiBase, model, systemPrompt string) *Provider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(normalizeBaseURL(apiBase)),
	)
	if model == "" {
		model = "claude-haiku-4-5"
	}
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &Provider{
		client: &client,
		model:  model,
		system: systemPrompt,
	}
}

func NewProviderWithClient(client *anthropic.Client, model, systemPrompt string) *Provider {
	p := NewProvider("", "", model, systemPrompt)
	p.client = client
	return p
}

// GenerateReply produces a reply body for one inbound message. The
// tenant ID is surfaced to the model so per-business prompt templates
// can reference it. An empty string means no reply.
func (p *Provider) GenerateReply(ctx context.Context, tenantID, inboundText string) (string, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: p.system},
			{Text: "Negocio: " + tenantID},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(inboundText)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			tb := block.AsText()
			sb.WriteString(tb.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		return defaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	if b, ok := strings.CutSuffix(base, "/v1"); ok {
		base = b
	}
	if base == "" {
		return defaultBaseURL
	}
	return base
}
