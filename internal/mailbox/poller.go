package mailbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// Handler receives each new email. A nil error marks it as delivered.
type Handler func(ctx context.Context, e models.EmailRecord) error

// PollerConfig tunes a Poller.
type PollerConfig struct {
	Interval  time.Duration
	SinceDays int
}

// Poller runs one polling loop per source.
type Poller struct {
	sources []Source
	tracker *Tracker
	handler Handler
	cfg     PollerConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewPoller creates a poller. Zero config values default to a one
// minute interval and a 30 day window.
func NewPoller(sources []Source, tracker *Tracker, handler Handler, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.SinceDays <= 0 {
		cfg.SinceDays = 30
	}
	return &Poller{
		sources: sources,
		tracker: tracker,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Run polls every source until ctx is done. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, src := range p.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx, src)
		}()
	}
	wg.Wait()
}

func (p *Poller) loop(ctx context.Context, src Source) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx, src); err != nil && ctx.Err() == nil {
			p.logger.Warn("mailbox poll failed", "account", src.Account(), "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce fetches new messages from src and hands each to the handler.
// It returns how many messages were delivered.
func (p *Poller) PollOnce(ctx context.Context, src Source) (int, error) {
	account := src.Account()
	since := p.now().AddDate(0, 0, -p.cfg.SinceDays)

	records, err := src.Fetch(ctx, since, func(uid string) bool {
		return p.tracker.Seen(account, uid)
	})
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, r := range records {
		if p.tracker.Seen(r.Account, r.UID) {
			continue
		}
		if err := p.handler(ctx, r); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return delivered, err
			}
			p.logger.Warn("handler rejected email", "key", r.Key().String(), "error", err)
			continue
		}
		if err := p.tracker.MarkSeen(r.Account, r.UID); err != nil {
			p.logger.Warn("could not persist mailbox state", "key", r.Key().String(), "error", err)
		}
		delivered++
	}
	return delivered, nil
}
