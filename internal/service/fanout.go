package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"announcement_relay/internal/domain"
	"announcement_relay/internal/metrics"
)

// BatchSink receives fan-out batches. Returning an error stops the emitter.
type BatchSink func(ctx context.Context, batch *domain.FeedBatch) error

// Emitter turns Updated outcomes into FeedBatches addressed to the feed's
// subscribers, in the order outcomes arrive.
type Emitter struct {
	subscriptions SubscriptionStore
	logger        *slog.Logger
}

func NewEmitter(subscriptions SubscriptionStore, logger *slog.Logger) *Emitter {
	return &Emitter{
		subscriptions: subscriptions,
		logger:        logger.With("component", "fanout"),
	}
}

// Emit consumes outcomes until the channel is closed, sending one batch per
// Updated outcome. Failed outcomes are logged and counted. A feed whose
// subscribers cannot be resolved is skipped; its checkpoint has already
// advanced, so those announcements are not re-sent.
func (e *Emitter) Emit(ctx context.Context, outcomes <-chan domain.SyncOutcome, sink string, send BatchSink) (*domain.SyncStats, error) {
	start := time.Now()
	stats := &domain.SyncStats{SyncID: uuid.NewString()}
	logger := e.logger.With("sync_id", stats.SyncID, "sink", sink)

	for {
		var outcome domain.SyncOutcome
		var ok bool

		select {
		case <-ctx.Done():
			stats.Duration = time.Since(start)
			return stats, ctx.Err()
		case outcome, ok = <-outcomes:
		}
		if !ok {
			break
		}

		stats.Record(outcome)

		switch outcome.Status {
		case domain.OutcomeFailed:
			logger.Warn("feed failed",
				"feed_id", outcome.Feed.ID,
				"canonical_id", outcome.Feed.CanonicalID,
				"error", outcome.Err,
			)
			continue
		case domain.OutcomeUnchanged:
			continue
		}

		subscribers, err := e.subscriptions.ListByFeed(ctx, outcome.Feed.ID)
		if err != nil {
			logger.Error("failed to resolve subscribers, dropping batch",
				"feed_id", outcome.Feed.ID,
				"announcements", len(outcome.Announcements),
				"error", err,
			)
			continue
		}

		batch := &domain.FeedBatch{
			FeedID:        outcome.Feed.ID,
			CanonicalID:   outcome.Feed.CanonicalID,
			Title:         outcome.Title,
			Announcements: outcome.Announcements,
			Subscribers:   subscribers,
		}
		if err := send(ctx, batch); err != nil {
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("send batch for feed %d: %w", outcome.Feed.ID, err)
		}

		stats.Batches++
		metrics.RecordBatch(sink)
	}

	stats.Duration = time.Since(start)

	logger.Info("fan-out completed",
		"feeds", stats.Feeds,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"failed", stats.Failed,
		"announcements", stats.Announcements,
		"batches", stats.Batches,
		"duration", stats.Duration,
	)

	return stats, nil
}
