// Package worker moves activity events from the queue into the activity log.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/sheets"
)

const (
	defaultSeenSize = 4096
	defaultSeenTTL  = time.Hour
)

// Consumer delivers activity events to a handler until ctx ends.
type Consumer interface {
	ConsumeActivity(ctx context.Context, handler func(context.Context, core.ActivityEvent) error) error
}

// ActivityWorker appends each consumed event to the activity log once.
// Redelivered events (same ID) that were already written are acknowledged
// without a second row.
type ActivityWorker struct {
	writer sheets.ActivityWriter
	logger *log.Logger
	seen   *cache.LRUCache[struct{}]
}

func NewActivityWorker(writer sheets.ActivityWriter, logger *log.Logger) *ActivityWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ActivityWorker{
		writer: writer,
		logger: logger.WithComponent(log.ComponentWorker),
		seen:   cache.NewLRUCache[struct{}](defaultSeenSize, defaultSeenTTL),
	}
}

// Seen exposes the dedupe cache so the caller can register it for cleanup.
func (w *ActivityWorker) Seen() cache.Cleaner { return w.seen }

// Prepare writes the sheet header when the writer needs one.
func (w *ActivityWorker) Prepare(ctx context.Context) error {
	if h, ok := w.writer.(sheets.HeaderEnsurer); ok {
		if err := h.EnsureHeader(ctx); err != nil {
			return fmt.Errorf("ensure activity header: %w", err)
		}
	}
	return nil
}

// HandleActivity writes one event. A returned error makes the consumer
// requeue the message.
func (w *ActivityWorker) HandleActivity(ctx context.Context, ev core.ActivityEvent) error {
	if ev.ID != "" {
		if _, dup := w.seen.Get(ev.ID); dup {
			w.logger.DebugContext(ctx, "Skipping duplicate activity event", "event_id", ev.ID)
			return nil
		}
	}

	if err := w.writer.AppendActivity(ctx, ev); err != nil {
		return fmt.Errorf("append activity %s: %w", ev.Type, err)
	}
	if ev.ID != "" {
		w.seen.Set(ev.ID, struct{}{})
	}

	w.logger.InfoContext(ctx, "Recorded activity event",
		log.FieldEventType, string(ev.Type),
		log.FieldUser, ev.User,
		log.FieldSessionID, ev.SessionID)
	return nil
}

// Run prepares the writer and consumes until ctx is cancelled. Cancellation
// is a clean exit.
func (w *ActivityWorker) Run(ctx context.Context, source Consumer) error {
	if err := w.Prepare(ctx); err != nil {
		return err
	}
	err := source.ConsumeActivity(ctx, w.HandleActivity)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
