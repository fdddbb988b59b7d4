package queryctrl

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"legalrag/src/core/query"
)

type QueryRecord struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	QueryText    string    `gorm:"not null" json:"query_text"`
	CacheKey     string    `gorm:"not null;index" json:"cache_key"`
	Status       string    `gorm:"not null;index" json:"status"`
	AnswerText   string    `json:"answer_text"`
	Sources      []string  `gorm:"serializer:json" json:"sources"`
	Insufficient bool      `json:"insufficient"`
	Error        string    `json:"error"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (QueryRecord) TableName() string {
	return "queries"
}

// QueryService is the postgres-backed query store. Completed rows double as
// the answer cache.
type QueryService struct {
	db *gorm.DB
}

func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{db: db}
}

func (s *QueryService) AutoMigrate() error {
	return s.db.AutoMigrate(&QueryRecord{})
}

func (s *QueryService) Create(ctx context.Context, q *query.Query) error {
	record := toRecord(q)
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if result.Error != nil {
		return fmt.Errorf("failed to create query: %v", result.Error)
	}
	return nil
}

func (s *QueryService) Get(ctx context.Context, id string) (*query.Query, error) {
	var record QueryRecord
	result := s.db.WithContext(ctx).First(&record, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get query: %v", result.Error)
	}
	return fromRecord(&record), nil
}

func (s *QueryService) Update(ctx context.Context, q *query.Query) error {
	result := s.db.WithContext(ctx).Save(toRecord(q))
	if result.Error != nil {
		return fmt.Errorf("failed to update query: %v", result.Error)
	}
	return nil
}

func (s *QueryService) GetCompletedByCacheKey(ctx context.Context, key string) (*query.Query, error) {
	var record QueryRecord
	result := s.db.WithContext(ctx).
		Where("cache_key = ? AND status = ?", key, string(query.StatusComplete)).
		Order("updated_at DESC").
		First(&record)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up cached query: %v", result.Error)
	}
	return fromRecord(&record), nil
}

// Ping reports database reachability for the health endpoint.
func (s *QueryService) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %v", err)
	}
	return db.PingContext(ctx)
}

func toRecord(q *query.Query) *QueryRecord {
	return &QueryRecord{
		ID:           q.ID,
		QueryText:    q.QueryText,
		CacheKey:     q.CacheKey,
		Status:       string(q.Status),
		AnswerText:   q.AnswerText,
		Sources:      q.Sources,
		Insufficient: q.Insufficient,
		Error:        q.Error,
		CreatedAt:    q.CreatedAt,
		UpdatedAt:    q.UpdatedAt,
	}
}

func fromRecord(r *QueryRecord) *query.Query {
	return &query.Query{
		ID:           r.ID,
		QueryText:    r.QueryText,
		CacheKey:     r.CacheKey,
		Status:       query.Status(r.Status),
		AnswerText:   r.AnswerText,
		Sources:      r.Sources,
		Insufficient: r.Insufficient,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
