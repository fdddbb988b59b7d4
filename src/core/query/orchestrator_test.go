package query_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"legalrag/src/core/query"
	"legalrag/src/core/rag"
)

type stubRetriever struct {
	mu    sync.Mutex
	rs    rag.ResultSet
	errs  []error
	calls int
}

func (s *stubRetriever) Retrieve(ctx context.Context, question string, topK int) (rag.ResultSet, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i < len(s.errs) && s.errs[i] != nil {
		return rag.ResultSet{}, s.errs[i]
	}
	return s.rs, nil
}

type stubGenerator struct {
	mu     sync.Mutex
	answer rag.Answer
	errs   []error
	delay  time.Duration
	calls  int
}

func (s *stubGenerator) Generate(ctx context.Context, question string, rs rag.ResultSet) (*rag.Answer, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	out := s.answer
	return &out, nil
}

func (s *stubGenerator) GenerateStream(ctx context.Context, question string, rs rag.ResultSet, fn func(string) error) (*rag.Answer, error) {
	ans, err := s.Generate(ctx, question, rs)
	if err != nil {
		return nil, err
	}
	half := len(ans.Text) / 2
	if err := fn(ans.Text[:half]); err != nil {
		return nil, err
	}
	if err := fn(ans.Text[half:]); err != nil {
		return nil, err
	}
	return ans, nil
}

func (s *stubGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testConfig() query.Config {
	return query.Config{
		TopK:          6,
		MaxConcurrent: 4,
		MaxRetries:    2,
		RetryBackoff:  time.Millisecond,
		Timeout:       5 * time.Second,
	}
}

func newTestOrchestrator(t *testing.T, retriever *stubRetriever, generator *stubGenerator, store query.Store) *query.Orchestrator {
	t.Helper()
	if store == nil {
		store = query.NewMemoryStore()
	}
	o, err := query.NewOrchestrator(store, retriever, generator, nil, testConfig())
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	return o
}

func defaultStubs() (*stubRetriever, *stubGenerator) {
	retriever := &stubRetriever{rs: rag.ResultSet{Chunks: []rag.Chunk{
		{RecordID: "QA_1", Content: "nội dung", Score: 0.9},
	}}}
	generator := &stubGenerator{answer: rag.Answer{
		Text:    "Câu trả lời. [Record ID: QA_1]",
		Sources: []string{"QA_1"},
	}}
	return retriever, generator
}

func TestAskCompletesQuery(t *testing.T) {
	retriever, generator := defaultStubs()
	o := newTestOrchestrator(t, retriever, generator, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	q, err := o.Ask(ctx, "Thời hạn nộp hồ sơ?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if q.Status != query.StatusComplete {
		t.Fatalf("Ask() status = %s, want complete", q.Status)
	}
	if q.AnswerText != generator.answer.Text {
		t.Errorf("Ask() answer = %q, want %q", q.AnswerText, generator.answer.Text)
	}
	if len(q.Sources) != 1 || q.Sources[0] != "QA_1" {
		t.Errorf("Ask() sources = %v, want [QA_1]", q.Sources)
	}

	// The persisted record converges to the same terminal state.
	stored, err := o.Get(ctx, q.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status != query.StatusComplete {
		t.Errorf("Get() status = %s, want complete", stored.Status)
	}
}

func TestConcurrentIdenticalSubmissionsRunOnce(t *testing.T) {
	retriever, generator := defaultStubs()
	generator.delay = 50 * time.Millisecond
	o := newTestOrchestrator(t, retriever, generator, nil)

	const submitters = 8
	results := make([]*query.Query, submitters)
	errs := make([]error, submitters)

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			results[i], errs[i] = o.Ask(ctx, "cùng một câu hỏi")
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	for i := 0; i < submitters; i++ {
		if errs[i] != nil {
			t.Fatalf("Ask(%d) error = %v", i, errs[i])
		}
		if results[i].Status != query.StatusComplete {
			t.Errorf("Ask(%d) status = %s, want complete", i, results[i].Status)
		}
		if results[i].AnswerText != generator.answer.Text {
			t.Errorf("Ask(%d) answer = %q, want shared answer", i, results[i].AnswerText)
		}
		ids[results[i].ID] = true
	}
	if len(ids) != submitters {
		t.Errorf("got %d distinct query ids, want %d", len(ids), submitters)
	}
	if got := generator.callCount(); got != 1 {
		t.Errorf("generator ran %d times for concurrent identical submissions, want 1", got)
	}
}

func TestCacheHitSkipsPipeline(t *testing.T) {
	retriever, generator := defaultStubs()
	o := newTestOrchestrator(t, retriever, generator, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	first, err := o.Ask(ctx, "câu hỏi được cache")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	second, err := o.Submit(ctx, "  CÂU HỎI  được cache ")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if second.Status != query.StatusComplete {
		t.Fatalf("Submit() after completion status = %s, want complete", second.Status)
	}
	if second.ID == first.ID {
		t.Error("cache hit reused the original query id")
	}
	if second.AnswerText != first.AnswerText {
		t.Errorf("cache hit answer = %q, want %q", second.AnswerText, first.AnswerText)
	}
	if got := generator.callCount(); got != 1 {
		t.Errorf("generator ran %d times, want 1 (second submission served from cache)", got)
	}
}

func TestFailedQueryIsNotCached(t *testing.T) {
	retriever, generator := defaultStubs()
	generator.errs = []error{errors.New("provider exploded")}
	o := newTestOrchestrator(t, retriever, generator, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	first, err := o.Ask(ctx, "câu hỏi lỗi")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if first.Status != query.StatusFailed {
		t.Fatalf("Ask() status = %s, want failed", first.Status)
	}
	if first.AnswerText != query.FailedAnswerText {
		t.Errorf("Ask() answer = %q, want generic failure message", first.AnswerText)
	}

	second, err := o.Ask(ctx, "câu hỏi lỗi")
	if err != nil {
		t.Fatalf("second Ask() error = %v", err)
	}
	if second.Status != query.StatusComplete {
		t.Errorf("second Ask() status = %s, want complete (failure must not be cached)", second.Status)
	}
	if got := generator.callCount(); got != 2 {
		t.Errorf("generator ran %d times, want 2", got)
	}
}

func TestTransientErrorsAreRetried(t *testing.T) {
	retriever, generator := defaultStubs()
	generator.errs = []error{rag.Transient(errors.New("rate limited"))}
	o := newTestOrchestrator(t, retriever, generator, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	q, err := o.Ask(ctx, "câu hỏi tạm lỗi")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if q.Status != query.StatusComplete {
		t.Fatalf("Ask() status = %s, want complete after retry", q.Status)
	}
	if got := generator.callCount(); got != 2 {
		t.Errorf("generator ran %d times, want 2 (one retry)", got)
	}
}

func TestTransientRetrievalRetried(t *testing.T) {
	retriever, generator := defaultStubs()
	retriever.errs = []error{rag.Transient(errors.New("connection reset"))}
	o := newTestOrchestrator(t, retriever, generator, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	q, err := o.Ask(ctx, "câu hỏi")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if q.Status != query.StatusComplete {
		t.Errorf("Ask() status = %s, want complete after retrieval retry", q.Status)
	}
}

func TestGetUnknownQuery(t *testing.T) {
	retriever, generator := defaultStubs()
	o := newTestOrchestrator(t, retriever, generator, nil)

	_, err := o.Get(context.Background(), "does-not-exist")
	if !errors.Is(err, query.ErrQueryNotFound) {
		t.Errorf("Get() error = %v, want ErrQueryNotFound", err)
	}
}

func TestSubmitEmptyQuestion(t *testing.T) {
	retriever, generator := defaultStubs()
	o := newTestOrchestrator(t, retriever, generator, nil)

	if _, err := o.Submit(context.Background(), "   "); err == nil {
		t.Error("Submit(blank) error = nil, want error")
	}
}

func TestStreamDeliversFragments(t *testing.T) {
	retriever, generator := defaultStubs()
	o := newTestOrchestrator(t, retriever, generator, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	q, frags, err := o.Stream(ctx, "câu hỏi streaming")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if q.ID == "" {
		t.Error("Stream() returned query without id")
	}

	var got strings.Builder
	for fragment := range frags {
		got.WriteString(fragment)
	}
	if got.String() != generator.answer.Text {
		t.Errorf("Stream() delivered %q, want %q", got.String(), generator.answer.Text)
	}

	// The computation persists a terminal record once the channel closes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, err := o.Get(ctx, q.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if stored.Status.Terminal() {
			if stored.Status != query.StatusComplete {
				t.Errorf("stored status = %s, want complete", stored.Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("query never reached a terminal state")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamCacheHitEmitsFullAnswer(t *testing.T) {
	retriever, generator := defaultStubs()
	o := newTestOrchestrator(t, retriever, generator, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := o.Ask(ctx, "câu hỏi đã trả lời"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	q, frags, err := o.Stream(ctx, "câu hỏi đã trả lời")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if q.Status != query.StatusComplete {
		t.Errorf("Stream() cache hit status = %s, want complete", q.Status)
	}

	var got strings.Builder
	for fragment := range frags {
		got.WriteString(fragment)
	}
	if got.String() != generator.answer.Text {
		t.Errorf("Stream() cache hit delivered %q, want cached answer", got.String())
	}
	if calls := generator.callCount(); calls != 1 {
		t.Errorf("generator ran %d times, want 1", calls)
	}
}
