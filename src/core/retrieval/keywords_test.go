package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"legalrag/src/core/retrieval"
)

type scriptedProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (p *scriptedProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func (p *scriptedProvider) CompleteStream(ctx context.Context, system, prompt string, fn func(string) error) error {
	resp, err := p.Complete(ctx, system, prompt)
	if err != nil {
		return err
	}
	return fn(resp)
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		provider  *scriptedProvider
		topK      int
		want      []string
		wantCalls int
	}{
		{
			name:      "well formed json",
			provider:  &scriptedProvider{responses: []string{`{"keywords": ["đăng ký kinh doanh", "người đại diện"]}`}},
			topK:      10,
			want:      []string{"đăng ký kinh doanh", "người đại diện"},
			wantCalls: 1,
		},
		{
			name:      "json embedded in prose",
			provider:  &scriptedProvider{responses: []string{`Here are the keywords: {"keywords": ["hợp đồng lao động"]}`}},
			topK:      10,
			want:      []string{"hợp đồng lao động"},
			wantCalls: 1,
		},
		{
			name:      "truncated to top k",
			provider:  &scriptedProvider{responses: []string{`{"keywords": ["a", "b", "c", "d"]}`}},
			topK:      2,
			want:      []string{"a", "b"},
			wantCalls: 1,
		},
		{
			name:      "no json falls back to word splitting",
			provider:  &scriptedProvider{responses: []string{"luật doanh nghiệp"}},
			topK:      10,
			want:      []string{"luật", "doanh", "nghiệp"},
			wantCalls: 1,
		},
		{
			name:      "malformed json retried then empty",
			provider:  &scriptedProvider{responses: []string{`{"keywords": [broken]}`, `{"keywords": "not an array"}`}},
			topK:      10,
			want:      nil,
			wantCalls: 2,
		},
		{
			name:      "provider error retried then succeeds",
			provider:  &scriptedProvider{errs: []error{errors.New("rate limited"), nil}, responses: []string{"", `{"keywords": ["thuế"]}`}},
			topK:      10,
			want:      []string{"thuế"},
			wantCalls: 2,
		},
		{
			name:      "provider failing both attempts yields empty",
			provider:  &scriptedProvider{errs: []error{errors.New("down"), errors.New("down")}},
			topK:      10,
			want:      nil,
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := retrieval.NewKeywordExtractor(tt.provider)
			got := e.Extract(context.Background(), "câu hỏi pháp lý", tt.topK)

			if len(got) != len(tt.want) {
				t.Fatalf("Extract() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Extract()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
			if tt.provider.calls != tt.wantCalls {
				t.Errorf("Extract() made %d provider calls, want %d", tt.provider.calls, tt.wantCalls)
			}
		})
	}
}

func TestExtractEmptyQuestion(t *testing.T) {
	p := &scriptedProvider{}
	e := retrieval.NewKeywordExtractor(p)
	if got := e.Extract(context.Background(), "", 10); got != nil {
		t.Errorf("Extract(empty) = %v, want nil", got)
	}
	if p.calls != 0 {
		t.Errorf("Extract(empty) made %d provider calls, want 0", p.calls)
	}
}
