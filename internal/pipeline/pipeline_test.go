package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/reachbox/internal/categorize"
	"github.com/raphaelgruber/reachbox/internal/metrics"
	"github.com/raphaelgruber/reachbox/internal/models"
)

// memIndex is an in-memory Index keyed like the real one.
type memIndex struct {
	mu      sync.Mutex
	records map[models.Key]models.EmailRecord
	writes  int
	failN   int
}

func newMemIndex() *memIndex {
	return &memIndex{records: make(map[models.Key]models.EmailRecord)}
}

func (m *memIndex) UpsertEmail(_ context.Context, e models.EmailRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.failN > 0 {
		m.failN--
		return errors.New("index unavailable")
	}
	m.records[e.Key()] = e
	return nil
}

func (m *memIndex) get(k models.Key) (models.EmailRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[k]
	return r, ok
}

func (m *memIndex) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type fixedCategorizer struct {
	category models.Category
	err      error
}

func (f fixedCategorizer) Categorize(context.Context, string, string) (models.Category, error) {
	return f.category, f.err
}

type countingDispatcher struct {
	calls atomic.Int32
}

func (c *countingDispatcher) Dispatch(context.Context, models.EmailRecord) {
	c.calls.Add(1)
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

type memContent struct {
	mu      sync.Mutex
	entries []models.ContentEntry
	err     error
}

func (m *memContent) Add(_ context.Context, e models.ContentEntry) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

func demoEmail() models.EmailRecord {
	return models.EmailRecord{
		UID:     "1",
		Account: "a@x.com",
		Subject: "Re: demo",
		Body:    "Looking forward to Tuesday",
		From:    "lead@y.com",
		Date:    time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestProcessInterestedIsIndexedAndNotified(t *testing.T) {
	index := newMemIndex()
	dispatcher := &countingDispatcher{}
	content := &memContent{}
	p := New(Deps{
		Categorizer: fixedCategorizer{category: models.CategoryInterested},
		Index:       index,
		Embedder:    fakeEmbedder{},
		Content:     content,
		Dispatcher:  dispatcher,
	}, WithBackOff(noWait))

	outcome := p.Process(context.Background(), demoEmail())

	assert.True(t, outcome.OK())
	assert.Equal(t, models.CategoryInterested, outcome.Category)
	assert.True(t, outcome.Notified)

	stored, ok := index.get(models.Key{Account: "a@x.com", UID: "1"})
	require.True(t, ok)
	assert.Equal(t, models.CategoryInterested, stored.Category)
	assert.Equal(t, models.DefaultFolder, stored.Folder)
	assert.Equal(t, int32(1), dispatcher.calls.Load())
	require.Len(t, content.entries, 1)
	assert.Equal(t, "a@x.com", content.entries[0].Account)
}

func TestProcessReingestLastWriteWins(t *testing.T) {
	index := newMemIndex()
	p := New(Deps{
		Categorizer: fixedCategorizer{category: models.CategoryInterested},
		Index:       index,
		Dispatcher:  &countingDispatcher{},
	}, WithBackOff(noWait))

	first := demoEmail()
	p.Process(context.Background(), first)

	second := demoEmail()
	second.Body = "Actually, can we do Wednesday?"
	p.Process(context.Background(), second)

	assert.Equal(t, 1, index.len())
	stored, ok := index.get(second.Key())
	require.True(t, ok)
	assert.Equal(t, second.Body, stored.Body)
}

func TestProcessNotificationGating(t *testing.T) {
	all := append([]models.Category{models.CategoryUncategorized}, models.Categories...)
	for _, category := range all {
		t.Run(string(category), func(t *testing.T) {
			dispatcher := &countingDispatcher{}
			p := New(Deps{
				Categorizer: fixedCategorizer{category: category},
				Index:       newMemIndex(),
				Dispatcher:  dispatcher,
			}, WithBackOff(noWait))

			outcome := p.Process(context.Background(), demoEmail())

			want := int32(0)
			if category == models.CategoryInterested {
				want = 1
			}
			assert.Equal(t, want, dispatcher.calls.Load())
			assert.Equal(t, want == 1, outcome.Notified)
		})
	}
}

func TestProcessCategorizerTimeoutFallsBackToUncategorized(t *testing.T) {
	index := newMemIndex()
	dispatcher := &countingDispatcher{}
	p := New(Deps{
		Categorizer: categorize.New(slowModel{}, 10*time.Millisecond, nil),
		Index:       index,
		Dispatcher:  dispatcher,
	}, WithBackOff(noWait))

	outcome := p.Process(context.Background(), demoEmail())

	assert.True(t, outcome.OK())
	assert.Equal(t, models.CategoryUncategorized, outcome.Category)
	stored, ok := index.get(demoEmail().Key())
	require.True(t, ok)
	assert.Equal(t, models.CategoryUncategorized, stored.Category)
	assert.Zero(t, dispatcher.calls.Load())

	require.NotEmpty(t, outcome.Stages)
	assert.Equal(t, StageClassify, outcome.Stages[0].Stage)
	assert.ErrorIs(t, outcome.Stages[0].Err, categorize.ErrClassificationUnavailable)
}

// slowModel never answers before the context ends.
type slowModel struct{}

func (slowModel) Generate(ctx context.Context, _ string, _ float64) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestProcessUnknownLabelIsUncategorized(t *testing.T) {
	p := New(Deps{
		Categorizer: fixedCategorizer{category: models.Category("Maybe")},
		Index:       newMemIndex(),
	}, WithBackOff(noWait))

	outcome := p.Process(context.Background(), demoEmail())
	assert.Equal(t, models.CategoryUncategorized, outcome.Category)
	assert.Error(t, outcome.Stages[0].Err)
}

func TestProcessIndexRetries(t *testing.T) {
	t.Run("recovers within attempts", func(t *testing.T) {
		index := newMemIndex()
		index.failN = 2
		p := New(Deps{
			Categorizer: fixedCategorizer{category: models.CategorySpam},
			Index:       index,
		}, WithBackOff(noWait))

		outcome := p.Process(context.Background(), demoEmail())
		assert.True(t, outcome.OK())
		assert.Equal(t, 3, index.writes)
		assert.Equal(t, 1, index.len())
	})

	t.Run("exhaustion is a partial failure", func(t *testing.T) {
		index := newMemIndex()
		index.failN = 10
		dispatcher := &countingDispatcher{}
		p := New(Deps{
			Categorizer: fixedCategorizer{category: models.CategoryInterested},
			Index:       index,
			Dispatcher:  dispatcher,
		}, WithBackOff(noWait))

		outcome := p.Process(context.Background(), demoEmail())
		assert.Equal(t, KindPartialFailure, outcome.Kind)
		assert.Equal(t, StageIndex, outcome.Stage)
		assert.ErrorIs(t, outcome.Cause, ErrIndexWrite)
		assert.Equal(t, DefaultIndexAttempts, index.writes)
		assert.Equal(t, models.CategoryInterested, outcome.Category)
		assert.Equal(t, int32(1), dispatcher.calls.Load())
	})

	t.Run("custom attempts", func(t *testing.T) {
		index := newMemIndex()
		index.failN = 10
		p := New(Deps{
			Categorizer: fixedCategorizer{category: models.CategorySpam},
			Index:       index,
		}, WithBackOff(noWait), WithIndexAttempts(5))

		p.Process(context.Background(), demoEmail())
		assert.Equal(t, 5, index.writes)
	})
}

func TestProcessContextStoreFailureKeepsSuccess(t *testing.T) {
	tests := []struct {
		name     string
		embedder fakeEmbedder
		content  *memContent
	}{
		{"embed fails", fakeEmbedder{err: errors.New("model gone")}, &memContent{}},
		{"store fails", fakeEmbedder{}, &memContent{err: errors.New("disk full")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Deps{
				Categorizer: fixedCategorizer{category: models.CategorySpam},
				Index:       newMemIndex(),
				Embedder:    tt.embedder,
				Content:     tt.content,
			}, WithBackOff(noWait))

			outcome := p.Process(context.Background(), demoEmail())
			assert.True(t, outcome.OK())

			var vectorize *StageResult
			for i := range outcome.Stages {
				if outcome.Stages[i].Stage == StageVectorize {
					vectorize = &outcome.Stages[i]
				}
			}
			require.NotNil(t, vectorize)
			assert.ErrorIs(t, vectorize.Err, ErrContextStore)
		})
	}
}

func TestProcessInvalidRecord(t *testing.T) {
	index := newMemIndex()
	p := New(Deps{Categorizer: fixedCategorizer{category: models.CategorySpam}, Index: index})

	e := demoEmail()
	e.UID = " "
	outcome := p.Process(context.Background(), e)

	assert.Equal(t, KindPartialFailure, outcome.Kind)
	assert.Equal(t, StageValidate, outcome.Stage)
	assert.ErrorIs(t, outcome.Cause, ErrInvalidRecord)
	assert.Zero(t, index.len())
}

// trackingIndex fails the test if two writes for the same key overlap.
type trackingIndex struct {
	mu     sync.Mutex
	active map[models.Key]bool
	t      *testing.T
}

func (ti *trackingIndex) UpsertEmail(_ context.Context, e models.EmailRecord) error {
	ti.mu.Lock()
	if ti.active[e.Key()] {
		ti.t.Errorf("concurrent write for %s", e.Key())
	}
	ti.active[e.Key()] = true
	ti.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	ti.mu.Lock()
	ti.active[e.Key()] = false
	ti.mu.Unlock()
	return nil
}

func TestProcessSerializesSameKey(t *testing.T) {
	index := &trackingIndex{active: make(map[models.Key]bool), t: t}
	p := New(Deps{Categorizer: fixedCategorizer{category: models.CategorySpam}, Index: index})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := demoEmail()
			e.UID = fmt.Sprintf("%d", i%3)
			p.Process(context.Background(), e)
		}()
	}
	wg.Wait()

	assert.Zero(t, p.locks.Len(), "idle keys must be evicted")
}

func TestProcessRecordsMetrics(t *testing.T) {
	collector := metrics.NewCollector()
	p := New(Deps{
		Categorizer: fixedCategorizer{category: models.CategoryInterested},
		Index:       newMemIndex(),
		Metrics:     collector,
	}, WithBackOff(noWait))

	p.Process(context.Background(), demoEmail())

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.Outcomes[string(KindSuccess)])
	assert.Equal(t, int64(1), snap.Categories[string(models.CategoryInterested)])
	assert.NotNil(t, snap.Operations[metrics.OpCategorize])
	assert.NotNil(t, snap.Operations[metrics.OpIndex])
}

// blockingEmbedder answers only when its context is done.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// blockingIndex answers only when its context is done.
type blockingIndex struct {
	attempts atomic.Int32
}

func (b *blockingIndex) UpsertEmail(ctx context.Context, _ models.EmailRecord) error {
	b.attempts.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

// processWithin fails the test when Process does not return in time.
func processWithin(t *testing.T, p *Pipeline, ctx context.Context, e models.EmailRecord) Outcome {
	t.Helper()
	done := make(chan Outcome, 1)
	go func() { done <- p.Process(ctx, e) }()
	select {
	case o := <-done:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not return")
		return Outcome{}
	}
}

func TestProcessVectorizeTimeoutStillNotifies(t *testing.T) {
	dispatcher := &countingDispatcher{}
	p := New(Deps{
		Categorizer: fixedCategorizer{category: models.CategoryInterested},
		Index:       newMemIndex(),
		Embedder:    blockingEmbedder{},
		Content:     &memContent{},
		Dispatcher:  dispatcher,
	}, WithVectorizeTimeout(20*time.Millisecond))

	outcome := processWithin(t, p, context.WithoutCancel(context.Background()), demoEmail())

	assert.True(t, outcome.OK())
	assert.True(t, outcome.Notified)
	assert.Equal(t, int32(1), dispatcher.calls.Load())

	var vectorize *StageResult
	for i := range outcome.Stages {
		if outcome.Stages[i].Stage == StageVectorize {
			vectorize = &outcome.Stages[i]
		}
	}
	require.NotNil(t, vectorize)
	assert.ErrorIs(t, vectorize.Err, ErrContextStore)
	assert.ErrorIs(t, vectorize.Err, context.DeadlineExceeded)
	assert.Zero(t, p.locks.Len())
}

func TestProcessIndexAttemptTimeout(t *testing.T) {
	index := &blockingIndex{}
	p := New(Deps{
		Categorizer: fixedCategorizer{category: models.CategorySpam},
		Index:       index,
	}, WithIndexTimeout(20*time.Millisecond), WithBackOff(noWait))

	outcome := processWithin(t, p, context.WithoutCancel(context.Background()), demoEmail())

	assert.Equal(t, KindPartialFailure, outcome.Kind)
	assert.Equal(t, StageIndex, outcome.Stage)
	assert.ErrorIs(t, outcome.Cause, ErrIndexWrite)
	assert.ErrorIs(t, outcome.Cause, context.DeadlineExceeded)
	assert.Equal(t, int32(DefaultIndexAttempts), index.attempts.Load())
}
