package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"legalrag/src/core/rag"
	"legalrag/src/infrastructure/log"
)

const (
	DispatchLocal = "local"
	DispatchQueue = "queue"
)

type Config struct {
	TopK          int
	MaxConcurrent int
	MaxRetries    int
	RetryBackoff  time.Duration
	Timeout       time.Duration
	CacheTTL      time.Duration // 0 means cached answers never expire
	Dispatch      string
	// Fingerprint folds the retrieval parameters into the cache key so a
	// config change does not serve answers computed under the old one.
	Fingerprint string
}

// inflight is one running computation shared by every query id waiting on the
// same cache key. Fields are written before done is closed and read after.
type inflight struct {
	ownerID string
	done    chan struct{}
	answer  *rag.Answer
	err     error
}

// Orchestrator drives a query from submission to a cached answer: cache
// lookup, in-flight coalescing, bounded-concurrency dispatch, retries, and
// persistence.
type Orchestrator struct {
	store     Store
	retriever Retriever
	generator Generator
	publisher JobPublisher
	cfg       Config

	mu       sync.Mutex
	inflight map[string]*inflight
	sem      chan struct{}
}

func NewOrchestrator(store Store, retriever Retriever, generator Generator, publisher JobPublisher, cfg Config) (*Orchestrator, error) {
	if cfg.TopK <= 0 {
		cfg.TopK = 6
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Dispatch == "" {
		cfg.Dispatch = DispatchLocal
	}
	if cfg.Dispatch != DispatchLocal && cfg.Dispatch != DispatchQueue {
		return nil, fmt.Errorf("%w: unknown dispatch mode %q", rag.ErrConfiguration, cfg.Dispatch)
	}
	if cfg.Dispatch == DispatchQueue && publisher == nil {
		return nil, fmt.Errorf("%w: queue dispatch requires a job publisher", rag.ErrConfiguration)
	}

	return &Orchestrator{
		store:     store,
		retriever: retriever,
		generator: generator,
		publisher: publisher,
		cfg:       cfg,
		inflight:  make(map[string]*inflight),
		sem:       make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Submit registers a question and starts (or joins) its computation. The
// returned query is complete immediately on a cache hit, otherwise pending.
func (o *Orchestrator) Submit(ctx context.Context, question string) (*Query, error) {
	q, _, _, err := o.submit(ctx, question, true)
	return q, err
}

// Ask is the synchronous form of Submit: it waits for the answer until ctx
// expires. On expiry the pending query is returned so the caller can poll.
func (o *Orchestrator) Ask(ctx context.Context, question string) (*Query, error) {
	q, fl, _, err := o.submit(ctx, question, true)
	if err != nil || fl == nil {
		return q, err
	}

	select {
	case <-fl.done:
		// Persistence of this record may still be in flight; the shared
		// result is authoritative either way.
		out := *q
		applyOutcome(&out, fl.answer, fl.err)
		return &out, nil
	case <-ctx.Done():
		return q, ctx.Err()
	}
}

// Stream submits the question and returns a channel of answer fragments. A
// cache hit or a joined in-flight computation yields the full text as a
// single fragment. Abandoning the channel does not cancel the computation;
// it finishes into the cache.
func (o *Orchestrator) Stream(ctx context.Context, question string) (*Query, <-chan string, error) {
	q, fl, owner, err := o.submit(ctx, question, false)
	if err != nil {
		return nil, nil, err
	}

	frags := make(chan string, 16)

	if fl == nil {
		frags <- q.AnswerText
		close(frags)
		return q, frags, nil
	}

	if !owner {
		go func() {
			defer close(frags)
			select {
			case <-fl.done:
			case <-ctx.Done():
				return
			}
			text := FailedAnswerText
			if fl.err == nil && fl.answer != nil {
				text = fl.answer.Text
			}
			select {
			case frags <- text:
			case <-ctx.Done():
			}
		}()
		return q, frags, nil
	}

	go func(qc Query) {
		defer close(frags)
		ans, serr := o.executeStream(ctx, &qc, frags)
		o.persistOutcome(&qc, ans, serr)
		o.settle(qc.CacheKey, fl, ans, serr)
	}(*q)
	return q, frags, nil
}

// Get returns the current state of a query. Side-effect free.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Query, error) {
	q, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrQueryNotFound
	}
	return q, nil
}

// ProcessByID runs the pipeline for an already-persisted query. This is the
// worker entry point; redeliveries of terminal queries are acknowledged
// without rerunning.
func (o *Orchestrator) ProcessByID(ctx context.Context, id string) error {
	q, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if q == nil {
		return ErrQueryNotFound
	}
	if q.Status.Terminal() {
		log.Info("skipping terminal query", "queryId", id, "status", q.Status)
		return nil
	}

	ans, perr := o.execute(q)
	o.persistOutcome(q, ans, perr)
	return nil
}

// submit is the shared entry: cache lookup, query record creation, and
// in-flight registration. fl is nil on a cache hit; owner reports whether the
// caller holds the computation. When dispatch is false an owning caller is
// expected to run the pipeline itself (the streaming path).
func (o *Orchestrator) submit(ctx context.Context, question string, dispatch bool) (*Query, *inflight, bool, error) {
	if strings.TrimSpace(question) == "" {
		return nil, nil, false, fmt.Errorf("question must not be empty")
	}
	key := CacheKey(question, o.cfg.Fingerprint)

	if cached, err := o.lookupCache(ctx, key); err != nil {
		log.Error(err, "cache lookup failed", "cacheKey", key)
	} else if cached != nil {
		q := o.newQuery(question, key)
		q.Status = StatusComplete
		q.AnswerText = cached.AnswerText
		q.Sources = append([]string(nil), cached.Sources...)
		q.Insufficient = cached.Insufficient
		if err := o.store.Create(ctx, q); err != nil {
			return nil, nil, false, fmt.Errorf("failed to persist query: %w", err)
		}
		log.Debug("cache hit", "cacheKey", key, "queryId", q.ID)
		return q, nil, false, nil
	}

	q := o.newQuery(question, key)
	if err := o.store.Create(ctx, q); err != nil {
		return nil, nil, false, fmt.Errorf("failed to persist query: %w", err)
	}

	o.mu.Lock()
	fl, joined := o.inflight[key]
	if !joined {
		fl = &inflight{ownerID: q.ID, done: make(chan struct{})}
		o.inflight[key] = fl
	}
	o.mu.Unlock()

	if joined {
		go o.awaitResult(*q, fl)
		return q, fl, false, nil
	}

	if !dispatch {
		return q, fl, true, nil
	}

	if o.cfg.Dispatch == DispatchQueue {
		if err := o.publisher.PublishQuery(ctx, q.ID); err != nil {
			err = fmt.Errorf("failed to publish query job: %w", err)
			o.persistOutcome(q, nil, err)
			o.settle(key, fl, nil, err)
			return nil, nil, false, err
		}
		go o.watchOwner(key, fl)
	} else {
		go func(qc Query) {
			ans, rerr := o.execute(&qc)
			o.persistOutcome(&qc, ans, rerr)
			o.settle(key, fl, ans, rerr)
		}(*q)
	}
	return q, fl, true, nil
}

func (o *Orchestrator) newQuery(question, key string) *Query {
	now := time.Now()
	return &Query{
		ID:        uuid.NewString(),
		QueryText: question,
		CacheKey:  key,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (o *Orchestrator) lookupCache(ctx context.Context, key string) (*Query, error) {
	cached, err := o.store.GetCompletedByCacheKey(ctx, key)
	if err != nil || cached == nil {
		return nil, err
	}
	if o.cfg.CacheTTL > 0 && time.Since(cached.UpdatedAt) > o.cfg.CacheTTL {
		return nil, nil
	}
	return cached, nil
}

// execute runs the pipeline under the concurrency semaphore with the
// configured wall-clock budget. The caller's lifetime is deliberately not
// part of the context: an abandoned submitter must not cancel a computation
// other waiters share.
func (o *Orchestrator) execute(q *Query) (*rag.Answer, error) {
	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.Timeout)
	defer cancel()

	o.markProcessing(ctx, q)

	rs, err := o.retrieveWithRetry(ctx, q.QueryText)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Info("retrying generation", "queryId", q.ID, "attempt", attempt)
			if err := o.backoff(ctx); err != nil {
				return nil, lastErr
			}
		}
		ans, err := o.generator.Generate(ctx, q.QueryText, rs)
		if err == nil {
			return ans, nil
		}
		if !rag.IsTransient(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// executeStream is execute with fragment forwarding. Fragments go to frags
// while the submitter is listening; once it goes away they are dropped and
// the computation still completes. Generation is not retried here since
// fragments already reached the client.
func (o *Orchestrator) executeStream(callerCtx context.Context, q *Query, frags chan<- string) (*rag.Answer, error) {
	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.Timeout)
	defer cancel()

	o.markProcessing(ctx, q)

	rs, err := o.retrieveWithRetry(ctx, q.QueryText)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	return o.generator.GenerateStream(ctx, q.QueryText, rs, func(fragment string) error {
		select {
		case frags <- fragment:
		case <-callerCtx.Done():
		}
		return nil
	})
}

func (o *Orchestrator) retrieveWithRetry(ctx context.Context, question string) (rag.ResultSet, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Info("retrying retrieval", "attempt", attempt)
			if err := o.backoff(ctx); err != nil {
				return rag.ResultSet{}, lastErr
			}
		}
		rs, err := o.retriever.Retrieve(ctx, question, o.cfg.TopK)
		if err == nil {
			return rs, nil
		}
		if !rag.IsTransient(err) || ctx.Err() != nil {
			return rag.ResultSet{}, err
		}
		lastErr = err
	}
	return rag.ResultSet{}, lastErr
}

func (o *Orchestrator) backoff(ctx context.Context) error {
	select {
	case <-time.After(o.cfg.RetryBackoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) markProcessing(ctx context.Context, q *Query) {
	q.Status = StatusProcessing
	q.UpdatedAt = time.Now()
	if err := o.store.Update(ctx, q); err != nil {
		log.Error(err, "failed to mark query processing", "queryId", q.ID)
	}
}

// applyOutcome maps a pipeline result onto the query record. Failures are
// never marked complete, so they can never be served from the cache.
func applyOutcome(q *Query, ans *rag.Answer, err error) {
	q.UpdatedAt = time.Now()
	if err != nil {
		q.Status = StatusFailed
		q.AnswerText = FailedAnswerText
		q.Sources = nil
		q.Insufficient = false
		q.Error = err.Error()
		return
	}
	q.Status = StatusComplete
	q.AnswerText = ans.Text
	q.Sources = ans.Sources
	q.Insufficient = ans.Insufficient
	q.Error = ""
}

// persistOutcome writes the terminal state.
func (o *Orchestrator) persistOutcome(q *Query, ans *rag.Answer, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err != nil {
		log.Error(err, "query failed", "queryId", q.ID)
	}
	applyOutcome(q, ans, err)
	if uerr := o.store.Update(ctx, q); uerr != nil {
		log.Error(uerr, "failed to persist query outcome", "queryId", q.ID)
	}
}

// settle publishes the result to waiters and retires the in-flight entry.
func (o *Orchestrator) settle(key string, fl *inflight, ans *rag.Answer, err error) {
	o.mu.Lock()
	if o.inflight[key] == fl {
		delete(o.inflight, key)
	}
	o.mu.Unlock()

	fl.answer = ans
	fl.err = err
	close(fl.done)
}

// awaitResult persists a waiter query once the shared computation finishes.
func (o *Orchestrator) awaitResult(q Query, fl *inflight) {
	<-fl.done
	o.persistOutcome(&q, fl.answer, fl.err)
}

// watchOwner tracks a queue-dispatched query by polling the store, since the
// worker that runs it lives in another process. Waiters release when the
// worker writes a terminal status.
func (o *Orchestrator) watchOwner(key string, fl *inflight) {
	deadline := time.Now().Add(2 * o.cfg.Timeout)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		q, err := o.store.Get(ctx, fl.ownerID)
		cancel()

		if err == nil && q != nil && q.Status.Terminal() {
			if q.Status == StatusComplete {
				o.settle(key, fl, &rag.Answer{Text: q.AnswerText, Sources: q.Sources, Insufficient: q.Insufficient}, nil)
			} else {
				msg := q.Error
				if msg == "" {
					msg = "query failed"
				}
				o.settle(key, fl, nil, errors.New(msg))
			}
			return
		}
		if time.Now().After(deadline) {
			o.settle(key, fl, nil, fmt.Errorf("query %s did not finish within %s", fl.ownerID, 2*o.cfg.Timeout))
			return
		}
		time.Sleep(time.Second)
	}
}
