package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"announcement_relay/internal/config"
	"announcement_relay/internal/domain"
	"announcement_relay/internal/metrics"
)

// SyncService fetches tracked feeds concurrently and decides which
// announcements are new. Each feed is processed by its own task; a failing
// feed yields a Failed outcome and never affects its siblings.
type SyncService struct {
	feeds   FeedStore
	fetcher Fetcher
	logger  *slog.Logger
	config  config.SyncConfig
}

func NewSyncService(
	feeds FeedStore,
	fetcher Fetcher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		feeds:   feeds,
		fetcher: fetcher,
		logger:  logger.With("component", "sync"),
		config:  cfg,
	}
}

// Tracked returns every tracked feed.
func (s *SyncService) Tracked(ctx context.Context) ([]domain.TrackedFeed, error) {
	feeds, err := s.feeds.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tracked feeds: %w", err)
	}
	return feeds, nil
}

// StreamNew syncs feeds and delivers one outcome per feed in completion
// order. A checkpoint is persisted before its Updated outcome is sent. The
// channel is closed once every feed has been processed.
func (s *SyncService) StreamNew(ctx context.Context, feeds []domain.TrackedFeed) <-chan domain.SyncOutcome {
	return s.run(ctx, feeds, "new", s.syncFeed)
}

// SyncNew is StreamNew collected into a slice.
func (s *SyncService) SyncNew(ctx context.Context, feeds []domain.TrackedFeed) []domain.SyncOutcome {
	return collect(s.StreamNew(ctx, feeds))
}

// StreamAll fetches feeds without touching checkpoints. With a cutoff, only
// announcements published after it are kept and feeds left empty are
// Unchanged; without one every fetched feed is Updated.
func (s *SyncService) StreamAll(ctx context.Context, feeds []domain.TrackedFeed, cutoff *time.Time) <-chan domain.SyncOutcome {
	return s.run(ctx, feeds, "list", func(ctx context.Context, tracked domain.TrackedFeed) domain.SyncOutcome {
		return s.listFeed(ctx, tracked, cutoff)
	})
}

// ListAll is StreamAll collected into a slice.
func (s *SyncService) ListAll(ctx context.Context, feeds []domain.TrackedFeed, cutoff *time.Time) []domain.SyncOutcome {
	return collect(s.StreamAll(ctx, feeds, cutoff))
}

func (s *SyncService) run(
	ctx context.Context,
	feeds []domain.TrackedFeed,
	mode string,
	task func(context.Context, domain.TrackedFeed) domain.SyncOutcome,
) <-chan domain.SyncOutcome {
	// Buffered so tasks finish even if the consumer stops reading.
	out := make(chan domain.SyncOutcome, len(feeds))

	go func() {
		defer close(out)

		var g errgroup.Group
		if s.config.MaxConcurrency > 0 {
			g.SetLimit(s.config.MaxConcurrency)
		}

		for _, tracked := range feeds {
			tracked := tracked
			g.Go(func() error {
				outcome := s.guard(ctx, tracked, task)
				metrics.RecordOutcome(mode, string(outcome.Status))
				out <- outcome
				return nil
			})
		}

		_ = g.Wait()
	}()

	return out
}

// guard turns a panicking task into a Failed outcome for that feed only.
func (s *SyncService) guard(
	ctx context.Context,
	tracked domain.TrackedFeed,
	task func(context.Context, domain.TrackedFeed) domain.SyncOutcome,
) (outcome domain.SyncOutcome) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("feed task panicked", "feed_id", tracked.ID, "panic", p)
			outcome = domain.Failed(tracked, fmt.Errorf("feed task panicked: %v", p))
		}
	}()
	return task(ctx, tracked)
}

func (s *SyncService) syncFeed(ctx context.Context, tracked domain.TrackedFeed) domain.SyncOutcome {
	logger := s.logger.With("feed_id", tracked.ID)

	feed, err := s.fetch(ctx, tracked)
	if err != nil {
		logger.Warn("fetch failed", "error", err)
		return domain.Failed(tracked, err)
	}

	// Re-read: a concurrent sync may have advanced the checkpoint since the
	// feed list was loaded.
	current, err := s.feeds.Get(ctx, tracked.ID)
	if err != nil {
		logger.Error("failed to read checkpoint", "error", err)
		return domain.Failed(tracked, fmt.Errorf("read checkpoint: %w", err))
	}
	tracked.Checkpoint = current.Checkpoint

	retained, checkpoint, ok := feed.After(current.Checkpoint)
	if !ok {
		return domain.Unchanged(tracked, feed.Title)
	}

	advanced, err := s.feeds.SetCheckpoint(ctx, tracked.ID, checkpoint)
	if err != nil {
		logger.Error("failed to persist checkpoint", "error", err)
		return domain.Failed(tracked, fmt.Errorf("persist checkpoint: %w", err))
	}
	if !advanced {
		logger.Info("checkpoint already advanced by a concurrent sync")
		return domain.Unchanged(tracked, feed.Title)
	}

	logger.Info("new announcements",
		"count", len(retained),
		"checkpoint", checkpoint,
	)

	return domain.Updated(tracked, feed.Title, retained, checkpoint)
}

func (s *SyncService) listFeed(ctx context.Context, tracked domain.TrackedFeed, cutoff *time.Time) domain.SyncOutcome {
	feed, err := s.fetch(ctx, tracked)
	if err != nil {
		s.logger.Warn("fetch failed", "feed_id", tracked.ID, "error", err)
		return domain.Failed(tracked, err)
	}

	if cutoff == nil {
		return domain.Updated(tracked, feed.Title, feed.Announcements, tracked.Checkpoint)
	}

	retained, latest, ok := feed.After(*cutoff)
	if !ok {
		return domain.Unchanged(tracked, feed.Title)
	}
	return domain.Updated(tracked, feed.Title, retained, latest)
}

// fetch tries the primary source and then each backup in order, each under
// its own timeout. The last error is returned when all of them fail.
func (s *SyncService) fetch(ctx context.Context, tracked domain.TrackedFeed) (*domain.Feed, error) {
	urls := tracked.SourceURLs()
	if len(urls) == 0 {
		return nil, domain.NewFeedError(domain.ErrInvalidFeedURL, "", fmt.Errorf("feed %d has no sources", tracked.ID))
	}

	var err error
	for i, url := range urls {
		var feed *domain.Feed
		feed, err = s.fetchOne(ctx, url)
		if err == nil {
			if i > 0 {
				s.logger.Info("fetched from backup source", "feed_id", tracked.ID, "url", url)
			}
			return feed, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, err
}

func (s *SyncService) fetchOne(ctx context.Context, url string) (*domain.Feed, error) {
	if s.config.FeedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.FeedTimeout)
		defer cancel()
	}
	return s.fetcher.Fetch(ctx, url)
}

func collect(outcomes <-chan domain.SyncOutcome) []domain.SyncOutcome {
	var all []domain.SyncOutcome
	for o := range outcomes {
		all = append(all, o)
	}
	return all
}
