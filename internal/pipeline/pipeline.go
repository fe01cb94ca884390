// Package pipeline turns one incoming email into an indexed, categorized
// record and decides whether to notify about it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/raphaelgruber/reachbox/internal/metrics"
	"github.com/raphaelgruber/reachbox/internal/models"
)

var (
	// ErrInvalidRecord is the cause when a record fails validation.
	ErrInvalidRecord = errors.New("invalid email record")
	// ErrIndexWrite is the cause when the search index rejects the record
	// after all attempts.
	ErrIndexWrite = errors.New("index write failed")
	// ErrContextStore marks a failed content store write. It never
	// changes the outcome kind.
	ErrContextStore = errors.New("context store write failed")
)

const (
	// DefaultIndexAttempts is the total number of index upsert attempts.
	DefaultIndexAttempts = 3
	// DefaultIndexTimeout bounds a single upsert attempt.
	DefaultIndexTimeout = 10 * time.Second
	// DefaultVectorizeTimeout bounds embedding and storing one body.
	DefaultVectorizeTimeout = 30 * time.Second
)

// Categorizer labels an email.
type Categorizer interface {
	Categorize(ctx context.Context, subject, body string) (models.Category, error)
}

// Index stores searchable records keyed by (account, uid).
type Index interface {
	UpsertEmail(ctx context.Context, e models.EmailRecord) error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContentStore keeps per-account body embeddings.
type ContentStore interface {
	Add(ctx context.Context, entry models.ContentEntry) error
}

// Dispatcher is told about interested leads. It must not block.
type Dispatcher interface {
	Dispatch(ctx context.Context, e models.EmailRecord)
}

// Recorder receives stage timings and outcomes.
type Recorder interface {
	RecordTiming(op string, duration time.Duration, err error)
	RecordOutcome(kind, category string)
}

// Deps are the collaborators of a Pipeline. Embedder, Content,
// Dispatcher and Metrics may be nil; the matching stage is then skipped.
type Deps struct {
	Categorizer Categorizer
	Index       Index
	Embedder    Embedder
	Content     ContentStore
	Dispatcher  Dispatcher
	Metrics     Recorder
	Logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithIndexAttempts sets the total number of index attempts.
func WithIndexAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.indexAttempts = n
		}
	}
}

// WithIndexTimeout bounds each index attempt.
func WithIndexTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.indexTimeout = d
		}
	}
}

// WithVectorizeTimeout bounds the vectorize stage.
func WithVectorizeTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.vectorizeTimeout = d
		}
	}
}

// WithBackOff replaces the retry schedule between index attempts.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(p *Pipeline) {
		p.newBackOff = newBackOff
	}
}

// Pipeline runs classify, index, vectorize and notify for each email.
// Safe for concurrent use; calls for the same key are serialized.
type Pipeline struct {
	deps             Deps
	logger           *slog.Logger
	locks            *keyLock
	indexAttempts    int
	indexTimeout     time.Duration
	vectorizeTimeout time.Duration
	newBackOff       func() backoff.BackOff
}

// New creates a pipeline.
func New(deps Deps, opts ...Option) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		deps:             deps,
		logger:           logger,
		locks:            newKeyLock(),
		indexAttempts:    DefaultIndexAttempts,
		indexTimeout:     DefaultIndexTimeout,
		vectorizeTimeout: DefaultVectorizeTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs every stage for one email and always returns an outcome.
func (p *Pipeline) Process(ctx context.Context, raw models.EmailRecord) Outcome {
	record := raw
	record.Normalize()

	outcome := Outcome{Key: record.Key(), Category: models.CategoryUncategorized, Kind: KindSuccess}
	defer func() {
		if p.deps.Metrics != nil {
			p.deps.Metrics.RecordOutcome(string(outcome.Kind), string(outcome.Category))
		}
	}()

	if err := record.Validate(); err != nil {
		cause := fmt.Errorf("%w: %w", ErrInvalidRecord, err)
		outcome.fail(StageValidate, cause)
		outcome.Stages = append(outcome.Stages, StageResult{Stage: StageValidate, Err: cause})
		p.logger.Warn("email rejected", "key", outcome.Key.String(), "error", err)
		return outcome
	}

	unlock := p.locks.Lock(outcome.Key)
	defer unlock()

	log := p.logger.With("key", outcome.Key.String())

	classify := p.classify(ctx, &record)
	outcome.Category = record.Category
	outcome.Stages = append(outcome.Stages, classify)
	if classify.Err != nil {
		log.Warn("classification unavailable, using fallback label",
			"category", record.Category, "error", classify.Err)
	}

	index := p.index(ctx, record)
	outcome.Stages = append(outcome.Stages, index)
	if index.Err != nil {
		outcome.fail(StageIndex, index.Err)
		log.Error("index write failed", "attempts", p.indexAttempts, "error", index.Err)
	}

	if p.deps.Embedder != nil && p.deps.Content != nil {
		vectorize := p.vectorize(ctx, record)
		outcome.Stages = append(outcome.Stages, vectorize)
		if vectorize.Err != nil {
			log.Warn("content store write failed", "error", vectorize.Err)
		}
	}

	if record.Category == models.CategoryInterested && p.deps.Dispatcher != nil {
		start := time.Now()
		p.deps.Dispatcher.Dispatch(ctx, record)
		outcome.Notified = true
		outcome.Stages = append(outcome.Stages, StageResult{Stage: StageNotify, DurationMs: time.Since(start).Milliseconds()})
	}

	log.Info("email processed",
		"category", outcome.Category,
		"kind", outcome.Kind,
		"notified", outcome.Notified)
	return outcome
}

func (o *Outcome) fail(stage Stage, cause error) {
	if o.Kind == KindPartialFailure {
		return
	}
	o.Kind = KindPartialFailure
	o.Stage = stage
	o.Cause = cause
}

func (p *Pipeline) classify(ctx context.Context, record *models.EmailRecord) StageResult {
	start := time.Now()
	category, err := p.deps.Categorizer.Categorize(ctx, record.Subject, record.Body)
	if err == nil && !category.Valid() {
		err = fmt.Errorf("unrecognized label %q", category)
	}
	if err != nil {
		category = models.CategoryUncategorized
	}
	record.Category = category
	return p.finish(StageClassify, metrics.OpCategorize, start, err)
}

func (p *Pipeline) index(ctx context.Context, record models.EmailRecord) StageResult {
	start := time.Now()
	attempt := 0

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.indexAttempts-1)), ctx)
	err := backoff.Retry(func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, p.indexTimeout)
		defer cancel()
		err := p.deps.Index.UpsertEmail(attemptCtx, record)
		if err != nil && attempt < p.indexAttempts {
			p.logger.Debug("index attempt failed", "key", record.Key().String(), "attempt", attempt, "error", err)
		}
		return err
	}, b)
	if err != nil {
		err = fmt.Errorf("%w after %d attempts: %w", ErrIndexWrite, attempt, err)
	}
	return p.finish(StageIndex, metrics.OpIndex, start, err)
}

func (p *Pipeline) vectorize(ctx context.Context, record models.EmailRecord) StageResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.vectorizeTimeout)
	defer cancel()
	err := p.storeContent(ctx, record)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrContextStore, err)
	}
	return p.finish(StageVectorize, metrics.OpVectorize, start, err)
}

func (p *Pipeline) storeContent(ctx context.Context, record models.EmailRecord) error {
	if record.Body == "" {
		return nil
	}
	embedding, err := p.deps.Embedder.Embed(ctx, record.Body)
	if err != nil {
		return fmt.Errorf("embed body: %w", err)
	}
	return p.deps.Content.Add(ctx, models.ContentEntry{
		Account:   record.Account,
		UID:       record.UID,
		Category:  record.Category,
		Text:      record.Body,
		Embedding: embedding,
	})
}

func (p *Pipeline) finish(stage Stage, op string, start time.Time, err error) StageResult {
	duration := time.Since(start)
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordTiming(op, duration, err)
	}
	return StageResult{Stage: stage, Err: err, DurationMs: duration.Milliseconds()}
}
