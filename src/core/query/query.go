package query

import (
	"context"
	"errors"
	"time"

	"legalrag/src/core/rag"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Query is one submitted question moving through the answer pipeline.
type Query struct {
	ID           string    `json:"id"`
	QueryText    string    `json:"queryText"`
	CacheKey     string    `json:"-"`
	Status       Status    `json:"status"`
	AnswerText   string    `json:"answerText,omitempty"`
	Sources      []string  `json:"sources,omitempty"`
	Insufficient bool      `json:"insufficient"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

var ErrQueryNotFound = errors.New("query not found")

// FailedAnswerText is returned for queries whose pipeline run exhausted its
// retries. Kept distinct from the insufficiency message so clients can tell
// "we do not know" apart from "we broke".
const FailedAnswerText = "An error occurred while generating the answer. Please try again later."

// Store persists queries. Completed entries double as the answer cache,
// looked up by cache key.
type Store interface {
	Create(ctx context.Context, q *Query) error
	Get(ctx context.Context, id string) (*Query, error)
	Update(ctx context.Context, q *Query) error
	// GetCompletedByCacheKey returns the most recently updated complete
	// query for the key, or nil when there is none.
	GetCompletedByCacheKey(ctx context.Context, key string) (*Query, error)
}

// Retriever produces the ranked evidence set for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) (rag.ResultSet, error)
}

// Generator produces the grounded answer from the evidence set.
type Generator interface {
	Generate(ctx context.Context, question string, rs rag.ResultSet) (*rag.Answer, error)
	GenerateStream(ctx context.Context, question string, rs rag.ResultSet, fn func(fragment string) error) (*rag.Answer, error)
}

// JobPublisher hands a query off to the out-of-process worker pool.
type JobPublisher interface {
	PublishQuery(ctx context.Context, queryID string) error
}
