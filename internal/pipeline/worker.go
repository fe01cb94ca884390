package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// ErrWorkerClosed is returned by Submit after Close.
var ErrWorkerClosed = errors.New("worker closed")

// DefaultWorkers is the default number of emails processed at once.
const DefaultWorkers = 4

// Worker runs a Pipeline on a bounded pool and publishes outcomes.
type Worker struct {
	pipeline *Pipeline
	sem      *semaphore.Weighted
	logger   *slog.Logger
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
	subs   map[int]chan Outcome
	nextID int
}

// NewWorker creates a worker processing at most concurrency emails at once.
func NewWorker(p *Pipeline, concurrency int, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		pipeline: p,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		logger:   logger,
		subs:     make(map[int]chan Outcome),
	}
}

// Submit queues an email and returns once a slot is free.
// Processing continues in the background after ctx is done.
func (w *Worker) Submit(ctx context.Context, e models.EmailRecord) error {
	if err := w.add(); err != nil {
		return err
	}
	if err := w.sem.Acquire(ctx, 1); err != nil {
		w.wg.Done()
		return err
	}

	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)
		w.publish(w.pipeline.Process(context.WithoutCancel(ctx), e))
	}()
	return nil
}

// Process runs an email on the pool and waits for its outcome.
func (w *Worker) Process(ctx context.Context, e models.EmailRecord) (Outcome, error) {
	if err := w.add(); err != nil {
		return Outcome{}, err
	}
	defer w.wg.Done()

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return Outcome{}, err
	}
	defer w.sem.Release(1)

	outcome := w.pipeline.Process(ctx, e)
	w.publish(outcome)
	return outcome, nil
}

func (w *Worker) add() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkerClosed
	}
	w.wg.Add(1)
	return nil
}

// Subscribe returns a channel receiving every future outcome and a
// function to cancel the subscription. Outcomes are dropped for
// subscribers whose buffer is full.
func (w *Worker) Subscribe(buffer int) (<-chan Outcome, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan Outcome, buffer)
	if w.closed {
		close(ch)
		return ch, func() {}
	}

	id := w.nextID
	w.nextID++
	w.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if _, ok := w.subs[id]; ok {
				delete(w.subs, id)
				close(ch)
			}
		})
	}
}

func (w *Worker) publish(o Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, ch := range w.subs {
		select {
		case ch <- o:
		default:
			w.logger.Warn("outcome subscriber lagging, dropped outcome", "subscriber", id, "key", o.Key.String())
		}
	}
}

// Close stops accepting work, waits for in-flight emails and closes
// all subscriber channels.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ch := range w.subs {
		close(ch)
		delete(w.subs, id)
	}
}
