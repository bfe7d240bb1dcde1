package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"announcement_relay/internal/domain"
)

// FeedStore is the checkpoint store and the feed half of the subscription directory.
type FeedStore interface {
	Get(ctx context.Context, id int64) (*domain.TrackedFeed, error)
	GetAll(ctx context.Context) ([]domain.TrackedFeed, error)
	FindByCanonicalID(ctx context.Context, canonicalID string) (*domain.TrackedFeed, error)
	Create(ctx context.Context, canonicalID string, checkpoint time.Time) (int64, error)
	AddSource(ctx context.Context, feedID int64, url string, primary bool) error
	SetCheckpoint(ctx context.Context, id int64, at time.Time) (bool, error)
}

type SubscriptionStore interface {
	Create(ctx context.Context, feedID int64, sub domain.Subscriber) error
	ListByFeed(ctx context.Context, feedID int64) ([]domain.Subscriber, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*domain.Feed, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, batch *domain.FeedBatch) error
	Close() error
}
