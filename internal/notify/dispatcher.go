// Package notify fans out notifications about interested leads to external sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// ErrSinkDelivery marks a failed delivery to a single sink.
var ErrSinkDelivery = errors.New("sink delivery failed")

// DefaultTimeout bounds one delivery attempt per sink.
const DefaultTimeout = 5 * time.Second

// Sink is one notification destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, email models.EmailRecord) error
}

// Dispatcher delivers records to every configured sink.
// Sinks run independently; a slow, failing or panicking sink never
// affects the others or the caller.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup

	// OnDelivery, if set, is called after each sink attempt.
	OnDelivery func(sink string, duration time.Duration, err error)
}

// NewDispatcher creates a dispatcher. A zero timeout uses DefaultTimeout.
func NewDispatcher(sinks []Sink, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, timeout: timeout, logger: logger}
}

// Sinks returns the configured sink names in dispatch order.
func (d *Dispatcher) Sinks() []string {
	return sinkNames(d.sinks)
}

func sinkNames(sinks []Sink) []string {
	return lo.Map(sinks, func(s Sink, _ int) string { return s.Name() })
}

// Dispatch starts delivery to every sink in order and returns immediately.
// Deliveries outlive ctx cancellation but not the per-sink timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, email models.EmailRecord) {
	base := context.WithoutCancel(ctx)
	for _, sink := range d.sinks {
		d.wg.Add(1)
		go d.deliver(base, sink, email)
	}
}

// Wait blocks until all in-flight deliveries have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, email models.EmailRecord) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := safeDeliver(ctx, sink, email)
	duration := time.Since(start)

	if d.OnDelivery != nil {
		d.OnDelivery(sink.Name(), duration, err)
	}

	if err != nil {
		d.logger.Warn("notification failed",
			"sink", sink.Name(),
			"key", email.Key().String(),
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return
	}
	d.logger.Info("notification sent",
		"sink", sink.Name(),
		"key", email.Key().String(),
		"duration_ms", duration.Milliseconds())
}

func safeDeliver(ctx context.Context, sink Sink, email models.EmailRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrSinkDelivery, sink.Name(), r)
		}
	}()

	if err := sink.Deliver(ctx, email); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSinkDelivery, sink.Name(), err)
	}
	return nil
}
