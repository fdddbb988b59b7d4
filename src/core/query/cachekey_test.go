package query_test

import (
	"testing"

	"legalrag/src/core/query"
)

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name      string
		a, b      string
		fpA, fpB  string
		wantEqual bool
	}{
		{
			name: "identical questions",
			a:    "Thời hạn nộp hồ sơ là bao lâu?", b: "Thời hạn nộp hồ sơ là bao lâu?",
			wantEqual: true,
		},
		{
			name: "case and whitespace are normalized away",
			a:    "  Thời hạn NỘP hồ sơ   là bao lâu? ", b: "thời hạn nộp hồ sơ là bao lâu?",
			wantEqual: true,
		},
		{
			name: "different questions",
			a:    "Thời hạn nộp hồ sơ?", b: "Mức phạt chậm nộp?",
			wantEqual: false,
		},
		{
			name: "different retrieval fingerprints",
			a:    "Thời hạn nộp hồ sơ?", b: "Thời hạn nộp hồ sơ?",
			fpA:  "topk=6", fpB: "topk=10",
			wantEqual: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyA := query.CacheKey(tt.a, tt.fpA)
			keyB := query.CacheKey(tt.b, tt.fpB)
			if (keyA == keyB) != tt.wantEqual {
				t.Errorf("CacheKey(%q, %q) == CacheKey(%q, %q) is %v, want %v",
					tt.a, tt.fpA, tt.b, tt.fpB, keyA == keyB, tt.wantEqual)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got := query.Normalize("  Giấy   PHÉP kinh doanh\t\n")
	want := "giấy phép kinh doanh"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}
