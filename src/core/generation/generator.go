package generation

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"legalrag/src/core/rag"
	"legalrag/src/infrastructure/log"
)

const DefaultMaxContextBytes = 8000

// InsufficientAnswer is the fixed response for questions the corpus cannot
// ground. Distinct from the generic failure message a crashed pipeline gets.
const InsufficientAnswer = "No relevant data found. Please rephrase your question or add more detail."

var (
	contextBlockTemplate = template.Must(template.New("contextBlock").Parse(contextBlockTmpl))
	answerPromptTemplate = template.Must(template.New("answerPrompt").Parse(answerPromptTmpl))
)

// Generator turns a retrieval result into a grounded, cited answer.
type Generator struct {
	provider        rag.LLMProvider
	maxContextBytes int
}

type Option func(g *Generator)

func WithMaxContextBytes(n int) Option {
	return func(g *Generator) {
		g.maxContextBytes = n
	}
}

func NewGenerator(provider rag.LLMProvider, opts ...Option) *Generator {
	g := &Generator{
		provider:        provider,
		maxContextBytes: DefaultMaxContextBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces the final answer for a question. When the result set is
// marked insufficient no provider call is made; the caller gets the fixed
// rephrase message with empty sources.
func (g *Generator) Generate(ctx context.Context, question string, rs rag.ResultSet) (*rag.Answer, error) {
	if rs.Insufficient || len(rs.Chunks) == 0 {
		return &rag.Answer{Text: InsufficientAnswer, Insufficient: true}, nil
	}

	prompt, err := g.buildPrompt(question, rs)
	if err != nil {
		return nil, err
	}

	raw, err := g.provider.Complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	return g.finalize(raw, rs)
}

// GenerateStream behaves like Generate but forwards raw provider fragments to
// fn as they arrive. The returned answer holds the validated full text; fn has
// already seen the unvalidated stream, so callers that render incrementally
// should replace the display with the final text once it is available.
func (g *Generator) GenerateStream(ctx context.Context, question string, rs rag.ResultSet, fn func(fragment string) error) (*rag.Answer, error) {
	if rs.Insufficient || len(rs.Chunks) == 0 {
		if err := fn(InsufficientAnswer); err != nil {
			return nil, err
		}
		return &rag.Answer{Text: InsufficientAnswer, Insufficient: true}, nil
	}

	prompt, err := g.buildPrompt(question, rs)
	if err != nil {
		return nil, err
	}

	var buf strings.Builder
	err = g.provider.CompleteStream(ctx, answerSystemPrompt, prompt, func(fragment string) error {
		buf.WriteString(fragment)
		return fn(fragment)
	})
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	return g.finalize(buf.String(), rs)
}

func (g *Generator) buildPrompt(question string, rs rag.ResultSet) (string, error) {
	blocks := make([]string, 0, len(rs.Chunks))
	for _, c := range rs.Chunks {
		if c.Content == "" {
			continue
		}
		var block bytes.Buffer
		if err := contextBlockTemplate.Execute(&block, c); err != nil {
			return "", fmt.Errorf("failed to render context block: %w", err)
		}
		blocks = append(blocks, block.String())
	}

	contextText := strings.Join(blocks, contextSeparator)
	if len(contextText) > g.maxContextBytes {
		log.Info("context too long, truncating", "bytes", len(contextText), "limit", g.maxContextBytes)
		contextText = truncateToRune(contextText, g.maxContextBytes)
	}

	var prompt bytes.Buffer
	err := answerPromptTemplate.Execute(&prompt, struct {
		Question string
		Context  string
	}{Question: question, Context: contextText})
	if err != nil {
		return "", fmt.Errorf("failed to render answer prompt: %w", err)
	}
	return prompt.String(), nil
}

// finalize validates citations against the retrieved set, computes the source
// list, and appends the references line.
func (g *Generator) finalize(raw string, rs rag.ResultSet) (*rag.Answer, error) {
	text, sources := ValidateCitations(raw, rs)
	if text == "" {
		return nil, fmt.Errorf("%w: empty completion", rag.ErrMalformedResponse)
	}

	if len(sources) == 0 {
		for _, c := range rs.Chunks {
			sources = append(sources, c.RecordID)
		}
	}

	markers := make([]string, len(sources))
	for i, id := range sources {
		markers[i] = fmt.Sprintf("[Record ID: %s]", id)
	}
	text += "\n\nReferences: " + strings.Join(markers, ", ")

	return &rag.Answer{Text: text, Sources: sources}, nil
}

// truncateToRune cuts s to at most n bytes without splitting a rune.
func truncateToRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
