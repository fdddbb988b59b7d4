package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"legalrag/src/core/rag"
	"legalrag/src/infrastructure/log"
)

const keywordAttempts = 2

const keywordSystemPrompt = "You are a legal search assistant. You extract search keywords from user questions and reply with JSON only."

const keywordPromptFormat = `Extract the top %d keywords from the following question and return them in a JSON array format.

The keywords must:
- Be in the same language as the question.
- Prioritize legal terms, concepts, and terminology likely to appear in legal documents, cases, or articles.
- Avoid overly broad or vague terms unless directly relevant.

Example:
Question: "thủ tục đăng ký thay đổi người đại diện theo pháp luật của doanh nghiệp?"
Return: {"keywords": ["đăng ký kinh doanh", "người đại diện", "luật doanh nghiệp", "giấy phép kinh doanh", "thông tin doanh nghiệp", "đăng ký doanh nghiệp"]}

Now, extract keywords for the following question:
Question: "%s"

Return the keywords in this format:
{"keywords": ["keyword1", "keyword2", "keyword3", ...]}`

var (
	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	wordPattern       = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// KeywordExtractor derives domain-salient search terms from a raw question
// using a structured-output instruction to the language model.
type KeywordExtractor struct {
	provider rag.LLMProvider
}

func NewKeywordExtractor(provider rag.LLMProvider) *KeywordExtractor {
	return &KeywordExtractor{provider: provider}
}

// Extract returns up to topK keywords for the question. It never propagates
// an error: malformed or failed provider output yields an empty set so the
// retriever can fall back to vector-only search.
func (e *KeywordExtractor) Extract(ctx context.Context, question string, topK int) []string {
	if question == "" || topK <= 0 {
		return nil
	}

	prompt := fmt.Sprintf(keywordPromptFormat, topK, question)

	for attempt := 1; attempt <= keywordAttempts; attempt++ {
		response, err := e.provider.Complete(ctx, keywordSystemPrompt, prompt)
		if err != nil {
			log.Error(err, "keyword extraction attempt failed", "attempt", attempt)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		keywords := parseKeywords(response, topK)
		if len(keywords) > 0 {
			log.Debug("extracted keywords", "keywords", keywords)
			return keywords
		}
		log.Info("keyword extraction returned no usable keywords", "attempt", attempt)
	}

	return nil
}

// parseKeywords pulls the keywords array out of the model response. It first
// looks for a JSON object, then falls back to plain word splitting of the
// whole response.
func parseKeywords(response string, topK int) []string {
	if match := jsonObjectPattern.FindString(response); match != "" {
		var parsed struct {
			Keywords []string `json:"keywords"`
		}
		if err := json.Unmarshal([]byte(match), &parsed); err != nil {
			log.Error(rag.ErrMalformedResponse, "failed to parse keyword JSON", "response", response)
			return nil
		}
		keywords := make([]string, 0, len(parsed.Keywords))
		for _, kw := range parsed.Keywords {
			kw = strings.TrimSpace(kw)
			if kw != "" {
				keywords = append(keywords, kw)
			}
			if len(keywords) == topK {
				break
			}
		}
		return keywords
	}

	return wordPattern.FindAllString(response, topK)
}
