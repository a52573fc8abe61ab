package worker

import (
	"context"
	"time"

	"finboard/internal/log"
)

// Purger deletes stored tokens last written before cutoff.
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenPurger drops tokens of sessions nobody came back to, so a long-running
// SQLite store does not keep every refresh token it ever saw.
type TokenPurger struct {
	store     Purger
	retention time.Duration
	interval  time.Duration
	logger    *log.Logger
	now       func() time.Time
}

func NewTokenPurger(store Purger, retention, interval time.Duration, logger *log.Logger) *TokenPurger {
	if logger == nil {
		logger = log.Discard()
	}
	return &TokenPurger{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentWorker).With("job", "token_purge"),
		now:       time.Now,
	}
}

// PurgeOnce removes tokens older than the retention window.
func (p *TokenPurger) PurgeOnce(ctx context.Context) (int64, error) {
	return p.store.PurgeOlderThan(ctx, p.now().Add(-p.retention))
}

// Run purges at start-up and then every interval until ctx is done. Failures
// are logged and retried on the next tick.
func (p *TokenPurger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *TokenPurger) tick(ctx context.Context) {
	n, err := p.PurgeOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.ErrorContext(ctx, "Token purge failed", log.FieldError, err)
		}
		return
	}
	p.logger.DebugContext(ctx, "Token purge complete",
		"purged", n,
		"next_check", p.now().Add(p.interval).Format("15:04:05"))
}
