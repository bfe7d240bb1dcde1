package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"announcement_relay/internal/config"
	"announcement_relay/internal/domain"
	"announcement_relay/internal/service/mocks"
)

type relayFixture struct {
	feeds         *memFeedStore
	subscriptions *memSubscriptionStore
	fetcher       *fakeFetcher
	subscribe     *SubscribeService
	announcements *AnnouncementService
}

func newRelayFixture() *relayFixture {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	f := &relayFixture{
		feeds:         newMemFeedStore(),
		subscriptions: newMemSubscriptionStore(),
		fetcher:       newFakeFetcher(),
	}
	f.subscribe = NewSubscribeService(f.fetcher, f.feeds, f.subscriptions, passthroughTx{}, logger)

	sync := NewSyncService(f.feeds, f.fetcher, logger, config.SyncConfig{FeedTimeout: time.Second, MaxConcurrency: 4})
	f.announcements = NewAnnouncementService(sync, NewEmitter(f.subscriptions, logger), logger)
	return f
}

func TestNewAnnouncements_DeliversEachAnnouncementOnce(t *testing.T) {
	ctx := context.Background()
	fx := newRelayFixture()
	sub := domain.Subscriber{ServerID: "guild", ChannelID: "general"}

	fx.fetcher.set(feedURL, &domain.Feed{
		CanonicalID: canonicalID,
		Title:       "CS 101",
		Announcements: []domain.Announcement{
			announcement("a", t0),
			announcement("b", t0.Add(time.Hour)),
		},
	})
	_, err := fx.subscribe.Subscribe(ctx, feedURL, sub)
	require.NoError(t, err)

	// First pass delivers the backlog.
	rec := &batchRecorder{}
	stats, err := fx.announcements.NewAnnouncements(ctx, "test", rec.send)
	require.NoError(t, err)
	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0].Announcements, 2)
	assert.Equal(t, []domain.Subscriber{sub}, rec.batches[0].Subscribers)
	assert.Equal(t, "CS 101", rec.batches[0].Title)
	assert.Equal(t, 1, stats.Updated)

	// Nothing changed upstream.
	rec = &batchRecorder{}
	stats, err = fx.announcements.NewAnnouncements(ctx, "test", rec.send)
	require.NoError(t, err)
	assert.Empty(t, rec.batches)
	assert.Equal(t, 1, stats.Unchanged)

	// One new entry.
	fx.fetcher.set(feedURL, &domain.Feed{
		CanonicalID: canonicalID,
		Title:       "CS 101",
		Announcements: []domain.Announcement{
			announcement("c", t0.Add(2*time.Hour)),
			announcement("a", t0),
			announcement("b", t0.Add(time.Hour)),
		},
	})
	rec = &batchRecorder{}
	_, err = fx.announcements.NewAnnouncements(ctx, "test", rec.send)
	require.NoError(t, err)
	require.Len(t, rec.batches, 1)
	require.Len(t, rec.batches[0].Announcements, 1)
	assert.Equal(t, "c", rec.batches[0].Announcements[0].EntryID)

	tracked, err := fx.feeds.FindByCanonicalID(ctx, canonicalID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(2*time.Hour), tracked.Checkpoint)
}

func TestNewAnnouncements_FailedFeedKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	fx := newRelayFixture()
	sub := domain.Subscriber{ServerID: "guild", ChannelID: "general"}

	fx.fetcher.set(feedURL, &domain.Feed{
		CanonicalID:   canonicalID,
		Announcements: []domain.Announcement{announcement("a", t0)},
	})
	_, err := fx.subscribe.Subscribe(ctx, feedURL, sub)
	require.NoError(t, err)

	fx.fetcher.fail(feedURL, domain.NewFeedError(domain.ErrNetwork, feedURL, errors.New("timeout")))

	rec := &batchRecorder{}
	stats, err := fx.announcements.NewAnnouncements(ctx, "test", rec.send)
	require.NoError(t, err)
	assert.Empty(t, rec.batches)
	assert.Equal(t, 1, stats.Failed)

	tracked, err := fx.feeds.FindByCanonicalID(ctx, canonicalID)
	require.NoError(t, err)
	assert.True(t, tracked.Checkpoint.Equal(domain.Epoch))

	// The backlog is still delivered once the feed recovers.
	fx.fetcher.set(feedURL, &domain.Feed{
		CanonicalID:   canonicalID,
		Announcements: []domain.Announcement{announcement("a", t0)},
	})
	rec = &batchRecorder{}
	_, err = fx.announcements.NewAnnouncements(ctx, "test", rec.send)
	require.NoError(t, err)
	assert.Len(t, rec.batches, 1)
}

func TestListFeeds_DoesNotAdvanceCheckpoints(t *testing.T) {
	ctx := context.Background()
	fx := newRelayFixture()
	sub := domain.Subscriber{ServerID: "guild", ChannelID: "general"}

	fx.fetcher.set(feedURL, &domain.Feed{
		CanonicalID: canonicalID,
		Title:       "CS 101",
		Announcements: []domain.Announcement{
			announcement("a", t0),
			announcement("b", t0.Add(time.Hour)),
		},
	})
	_, err := fx.subscribe.Subscribe(ctx, feedURL, sub)
	require.NoError(t, err)

	rec := &batchRecorder{}
	require.NoError(t, fx.announcements.ListFeeds(ctx, nil, rec.send))
	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0].Announcements, 2)
	assert.NotNil(t, rec.batches[0].Subscribers)
	assert.Empty(t, rec.batches[0].Subscribers)

	cutoff := t0
	rec = &batchRecorder{}
	require.NoError(t, fx.announcements.ListFeeds(ctx, &cutoff, rec.send))
	require.Len(t, rec.batches, 1)
	require.Len(t, rec.batches[0].Announcements, 1)
	assert.Equal(t, "b", rec.batches[0].Announcements[0].EntryID)

	cutoff = t0.Add(time.Hour)
	rec = &batchRecorder{}
	require.NoError(t, fx.announcements.ListFeeds(ctx, &cutoff, rec.send))
	assert.Empty(t, rec.batches)

	tracked, err := fx.feeds.FindByCanonicalID(ctx, canonicalID)
	require.NoError(t, err)
	assert.True(t, tracked.Checkpoint.Equal(domain.Epoch))

	// Listing left the backlog for the next sync.
	rec = &batchRecorder{}
	_, err = fx.announcements.NewAnnouncements(ctx, "test", rec.send)
	require.NoError(t, err)
	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0].Announcements, 2)
}

func TestDispatcher_PublishesBatches(t *testing.T) {
	ctx := context.Background()
	fx := newRelayFixture()
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)

	fx.fetcher.set(feedURL, &domain.Feed{
		CanonicalID:   canonicalID,
		Announcements: []domain.Announcement{announcement("a", t0)},
	})
	_, err := fx.subscribe.Subscribe(ctx, feedURL, domain.Subscriber{ServerID: "g", ChannelID: "c"})
	require.NoError(t, err)

	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, batch *domain.FeedBatch) error {
			assert.Equal(t, canonicalID, batch.CanonicalID)
			assert.Len(t, batch.Subscribers, 1)
			return nil
		},
	)

	stats, err := NewDispatcher(fx.announcements, publisher).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Batches)
}

func TestDispatcher_PublishFailure(t *testing.T) {
	ctx := context.Background()
	fx := newRelayFixture()
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)

	fx.fetcher.set(feedURL, &domain.Feed{
		CanonicalID:   canonicalID,
		Announcements: []domain.Announcement{announcement("a", t0)},
	})
	_, err := fx.subscribe.Subscribe(ctx, feedURL, domain.Subscriber{ServerID: "g", ChannelID: "c"})
	require.NoError(t, err)

	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("channel closed"))

	_, err = NewDispatcher(fx.announcements, publisher).Sync(ctx)
	assert.ErrorContains(t, err, "channel closed")
}

func TestDispatcher_PublishFailureLeavesSlowFeedsUntouched(t *testing.T) {
	ctx := context.Background()
	fx := newRelayFixture()
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	sub := domain.Subscriber{ServerID: "g", ChannelID: "c"}

	const (
		slowURL       = "https://canvas.example.edu/feeds/announcements/course_7.atom"
		slowCanonical = "tag:canvas.example.edu,2024-01-08:/courses/7"
	)

	fx.fetcher.set(feedURL, &domain.Feed{
		CanonicalID:   canonicalID,
		Announcements: []domain.Announcement{announcement("a1", t0)},
	})
	fx.fetcher.set(slowURL, &domain.Feed{
		CanonicalID:   slowCanonical,
		Announcements: []domain.Announcement{announcement("b1", t0)},
	})
	_, err := fx.subscribe.Subscribe(ctx, feedURL, sub)
	require.NoError(t, err)
	_, err = fx.subscribe.Subscribe(ctx, slowURL, sub)
	require.NoError(t, err)

	fx.fetcher.hold(slowURL, 200*time.Millisecond)

	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, batch *domain.FeedBatch) error {
			assert.Equal(t, canonicalID, batch.CanonicalID)
			return errors.New("broker down")
		},
	)

	_, err = NewDispatcher(fx.announcements, publisher).Sync(ctx)
	require.ErrorContains(t, err, "broker down")

	slowAdvanced := func() bool {
		tracked, err := fx.feeds.FindByCanonicalID(ctx, slowCanonical)
		return err == nil && !tracked.Checkpoint.Equal(domain.Epoch)
	}
	assert.Never(t, slowAdvanced, 400*time.Millisecond, 20*time.Millisecond)

	// The slow feed's backlog goes out on the next pass.
	fx.fetcher.hold(slowURL, 0)
	rec := &batchRecorder{}
	_, err = fx.announcements.NewAnnouncements(ctx, "test", rec.send)
	require.NoError(t, err)
	require.Len(t, rec.batches, 1)
	assert.Equal(t, slowCanonical, rec.batches[0].CanonicalID)
	require.Len(t, rec.batches[0].Announcements, 1)
	assert.Equal(t, "b1", rec.batches[0].Announcements[0].EntryID)
}

func TestDispatcher_WithoutPublisher(t *testing.T) {
	_, err := NewDispatcher(newRelayFixture().announcements, nil).Sync(context.Background())
	assert.Error(t, err)
}
