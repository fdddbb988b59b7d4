package groq

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"legalrag/src/core/rag"
)

const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Provider drives Groq's OpenAI-compatible chat API.
type Provider struct {
	llm   *openai.LLM
	model string
}

func NewProvider(apiKey, baseURL, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: groq api key is required", rag.ErrConfiguration)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create groq client: %w", err)
	}

	return &Provider{llm: llm, model: model}, nil
}

func (p *Provider) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := p.llm.GenerateContent(ctx, messages(system, prompt))
	if err != nil {
		return "", rag.Transient(fmt.Errorf("groq completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: groq returned no choices", rag.ErrMalformedResponse)
	}
	return resp.Choices[0].Content, nil
}

func (p *Provider) CompleteStream(ctx context.Context, system, prompt string, fn func(fragment string) error) error {
	_, err := p.llm.GenerateContent(ctx, messages(system, prompt),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return fn(string(chunk))
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return rag.Transient(fmt.Errorf("groq completion failed: %w", err))
	}
	return nil
}

func messages(system, prompt string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
}
