package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"announcement_relay/internal/domain"
	"announcement_relay/internal/metrics"
)

const maxResolveAttempts = 3

// SubscribeService registers subscribers for feeds, tracking the feed first
// if its canonical id has not been seen before.
type SubscribeService struct {
	fetcher       Fetcher
	feeds         FeedStore
	subscriptions SubscriptionStore
	txManager     TransactionManager
	logger        *slog.Logger
}

func NewSubscribeService(
	fetcher Fetcher,
	feeds FeedStore,
	subscriptions SubscriptionStore,
	txManager TransactionManager,
	logger *slog.Logger,
) *SubscribeService {
	return &SubscribeService{
		fetcher:       fetcher,
		feeds:         feeds,
		subscriptions: subscriptions,
		txManager:     txManager,
		logger:        logger.With("component", "subscribe"),
	}
}

// Subscribe fetches sourceURL, finds or creates the tracked feed for its
// canonical id and subscribes sub to it. It returns the feed title.
//
// Errors: domain.ErrInvalidFeedURL when the url cannot be fetched,
// domain.ErrDeserialization when it is not a feed, domain.ErrAlreadySubscribed
// when sub already receives the feed.
func (s *SubscribeService) Subscribe(ctx context.Context, sourceURL string, sub domain.Subscriber) (string, error) {
	logger := s.logger.With("url", sourceURL, "server_id", sub.ServerID, "channel_id", sub.ChannelID)

	feed, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		logger.Info("subscribe fetch failed", "error", err)
		err = classifyFetchError(err)
		metrics.RecordSubscribe(resultLabel(err))
		return "", err
	}

	feedID, err := s.resolveFeed(ctx, feed.CanonicalID, sourceURL)
	if err != nil {
		logger.Error("failed to resolve feed", "canonical_id", feed.CanonicalID, "error", err)
		metrics.RecordSubscribe(resultLabel(err))
		return "", fmt.Errorf("resolve feed: %w", err)
	}

	if err := s.subscriptions.Create(ctx, feedID, sub); err != nil {
		if errors.Is(err, domain.ErrUniqueViolation) {
			metrics.RecordSubscribe(resultLabel(domain.ErrAlreadySubscribed))
			return "", fmt.Errorf("feed %d: %w", feedID, domain.ErrAlreadySubscribed)
		}
		logger.Error("failed to create subscription", "feed_id", feedID, "error", err)
		metrics.RecordSubscribe(resultLabel(err))
		return "", fmt.Errorf("create subscription: %w", err)
	}

	logger.Info("subscription created", "feed_id", feedID, "title", feed.Title)
	metrics.RecordSubscribe(resultLabel(nil))

	return feed.Title, nil
}

// resolveFeed returns the id of the feed tracked under canonicalID, creating
// it with sourceURL as primary source when absent. A url not yet known for an
// existing feed becomes a backup source. Losing a concurrent create to the
// unique constraint re-reads the winner's row.
func (s *SubscribeService) resolveFeed(ctx context.Context, canonicalID, sourceURL string) (int64, error) {
	var lastErr error

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		existing, err := s.feeds.FindByCanonicalID(ctx, canonicalID)
		switch {
		case err == nil:
			if !hasSource(existing, sourceURL) {
				if err := s.feeds.AddSource(ctx, existing.ID, sourceURL, false); err != nil {
					return 0, fmt.Errorf("add backup source: %w", err)
				}
				s.logger.Info("registered backup source", "feed_id", existing.ID, "url", sourceURL)
			}
			return existing.ID, nil
		case !errors.Is(err, domain.ErrNotFound):
			return 0, fmt.Errorf("find feed: %w", err)
		}

		var id int64
		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			var err error
			id, err = s.feeds.Create(txCtx, canonicalID, domain.Epoch)
			if err != nil {
				return err
			}
			return s.feeds.AddSource(txCtx, id, sourceURL, true)
		})
		if err == nil {
			s.logger.Info("tracking new feed", "feed_id", id, "canonical_id", canonicalID)
			return id, nil
		}
		if !errors.Is(err, domain.ErrUniqueViolation) {
			return 0, fmt.Errorf("create feed: %w", err)
		}

		s.logger.Debug("feed created concurrently, re-reading", "canonical_id", canonicalID, "attempt", attempt)
		lastErr = err
	}

	return 0, fmt.Errorf("create feed after %d attempts: %w", maxResolveAttempts, lastErr)
}

func hasSource(feed *domain.TrackedFeed, url string) bool {
	for _, u := range feed.SourceURLs() {
		if u == url {
			return true
		}
	}
	return false
}

// classifyFetchError reports network failures as ErrInvalidFeedURL.
func classifyFetchError(err error) error {
	switch {
	case errors.Is(err, domain.ErrDeserialization), errors.Is(err, domain.ErrInvalidFeedURL):
		return err
	case errors.Is(err, domain.ErrNetwork):
		return fmt.Errorf("%w: %w", domain.ErrInvalidFeedURL, err)
	default:
		return err
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "subscribed"
	case errors.Is(err, domain.ErrAlreadySubscribed):
		return "already_subscribed"
	case errors.Is(err, domain.ErrInvalidFeedURL):
		return "invalid_url"
	case errors.Is(err, domain.ErrDeserialization):
		return "deserialization"
	default:
		return "error"
	}
}
