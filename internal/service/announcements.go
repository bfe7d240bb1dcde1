package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"announcement_relay/internal/domain"
)

// AnnouncementService backs the ListFeeds and NewAnnouncements calls.
type AnnouncementService struct {
	sync    *SyncService
	emitter *Emitter
	logger  *slog.Logger
}

func NewAnnouncementService(sync *SyncService, emitter *Emitter, logger *slog.Logger) *AnnouncementService {
	return &AnnouncementService{
		sync:    sync,
		emitter: emitter,
		logger:  logger.With("component", "announcements"),
	}
}

// ListFeeds sends every tracked feed's announcements, or only those after
// cutoff when given, without advancing checkpoints. Batches carry no
// subscribers. Feeds that fail to fetch are skipped, as are feeds left
// empty by the cutoff.
func (s *AnnouncementService) ListFeeds(ctx context.Context, cutoff *time.Time, send BatchSink) error {
	feeds, err := s.sync.Tracked(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for outcome := range s.sync.StreamAll(ctx, feeds, cutoff) {
		switch outcome.Status {
		case domain.OutcomeFailed:
			s.logger.Warn("skipping feed", "feed_id", outcome.Feed.ID, "error", outcome.Err)
			continue
		case domain.OutcomeUnchanged:
			continue
		}

		batch := &domain.FeedBatch{
			FeedID:        outcome.Feed.ID,
			CanonicalID:   outcome.Feed.CanonicalID,
			Title:         outcome.Title,
			Announcements: outcome.Announcements,
			Subscribers:   []domain.Subscriber{},
		}
		if err := send(ctx, batch); err != nil {
			return fmt.Errorf("send batch for feed %d: %w", outcome.Feed.ID, err)
		}
	}

	return ctx.Err()
}

// NewAnnouncements runs a full sync and sends one batch per feed with new
// announcements, addressed to its subscribers. When send fails the sync is
// cancelled, so feeds still in flight keep their checkpoints.
func (s *AnnouncementService) NewAnnouncements(ctx context.Context, sink string, send BatchSink) (*domain.SyncStats, error) {
	feeds, err := s.sync.Tracked(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	return s.emitter.Emit(ctx, s.sync.StreamNew(ctx, feeds), sink, send)
}
