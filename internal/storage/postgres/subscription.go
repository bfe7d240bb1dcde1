package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"announcement_relay/internal/domain"
)

// SubscriptionStore persists feed subscribers.
type SubscriptionStore struct {
	db *sqlx.DB
}

func NewSubscriptionStore(db *sqlx.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Create registers sub for a feed. An existing (feed, subscriber) pair fails
// with domain.ErrUniqueViolation.
func (s *SubscriptionStore) Create(ctx context.Context, feedID int64, sub domain.Subscriber) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"INSERT INTO subscriptions (feed_id, server_id, channel_id) VALUES ($1, $2, $3)",
		feedID, sub.ServerID, sub.ChannelID,
	)
	return mapError("create subscription", err)
}

func (s *SubscriptionStore) ListByFeed(ctx context.Context, feedID int64) ([]domain.Subscriber, error) {
	subscribers := []domain.Subscriber{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &subscribers, `
		SELECT server_id, channel_id
		FROM subscriptions
		WHERE feed_id = $1
		ORDER BY id`,
		feedID,
	)
	if err != nil {
		return nil, mapError("list subscribers", err)
	}
	return subscribers, nil
}
