package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"announcement_relay/internal/domain"
)

// memFeedStore mirrors the postgres FeedStore semantics in memory.
type memFeedStore struct {
	mu     sync.Mutex
	nextID int64
	feeds  map[int64]*domain.TrackedFeed
}

func newMemFeedStore() *memFeedStore {
	return &memFeedStore{feeds: make(map[int64]*domain.TrackedFeed)}
}

func (m *memFeedStore) Get(ctx context.Context, id int64) (*domain.TrackedFeed, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("get feed", domain.ErrStoreOther, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[id]
	if !ok {
		return nil, domain.NewStoreError("get feed", domain.ErrNotFound, nil)
	}
	cp := *f
	cp.BackupURLs = append([]string(nil), f.BackupURLs...)
	return &cp, nil
}

func (m *memFeedStore) GetAll(ctx context.Context) ([]domain.TrackedFeed, error) {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.feeds))
	for id := int64(1); id <= m.nextID; id++ {
		if _, ok := m.feeds[id]; ok {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	out := make([]domain.TrackedFeed, 0, len(ids))
	for _, id := range ids {
		f, _ := m.Get(ctx, id)
		out = append(out, *f)
	}
	return out, nil
}

func (m *memFeedStore) FindByCanonicalID(ctx context.Context, canonicalID string) (*domain.TrackedFeed, error) {
	m.mu.Lock()
	var found int64
	for id, f := range m.feeds {
		if f.CanonicalID == canonicalID {
			found = id
		}
	}
	m.mu.Unlock()
	if found == 0 {
		return nil, domain.NewStoreError("find feed", domain.ErrNotFound, nil)
	}
	return m.Get(ctx, found)
}

func (m *memFeedStore) Create(_ context.Context, canonicalID string, checkpoint time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.feeds {
		if f.CanonicalID == canonicalID {
			return 0, domain.NewStoreError("create feed", domain.ErrUniqueViolation, nil)
		}
	}
	m.nextID++
	m.feeds[m.nextID] = &domain.TrackedFeed{ID: m.nextID, CanonicalID: canonicalID, Checkpoint: checkpoint}
	return m.nextID, nil
}

func (m *memFeedStore) AddSource(_ context.Context, feedID int64, url string, primary bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[feedID]
	if !ok {
		return domain.NewStoreError("add source", domain.ErrStoreOther, fmt.Errorf("no feed %d", feedID))
	}
	for _, u := range f.SourceURLs() {
		if u == url {
			return nil
		}
	}
	if primary {
		f.SourceURL = url
	} else {
		f.BackupURLs = append(f.BackupURLs, url)
	}
	return nil
}

func (m *memFeedStore) SetCheckpoint(ctx context.Context, id int64, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.NewStoreError("set checkpoint", domain.ErrStoreOther, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[id]
	if !ok {
		return false, domain.NewStoreError("set checkpoint", domain.ErrNotFound, nil)
	}
	if !f.Checkpoint.Before(at) {
		return false, nil
	}
	f.Checkpoint = at
	return true, nil
}

func (m *memFeedStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.feeds)
}

type memSubscriptionStore struct {
	mu   sync.Mutex
	subs map[int64][]domain.Subscriber
}

func newMemSubscriptionStore() *memSubscriptionStore {
	return &memSubscriptionStore{subs: make(map[int64][]domain.Subscriber)}
}

func (m *memSubscriptionStore) Create(_ context.Context, feedID int64, sub domain.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs[feedID] {
		if s == sub {
			return domain.NewStoreError("create subscription", domain.ErrUniqueViolation, nil)
		}
	}
	m.subs[feedID] = append(m.subs[feedID], sub)
	return nil
}

func (m *memSubscriptionStore) ListByFeed(_ context.Context, feedID int64) ([]domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Subscriber{}, m.subs[feedID]...), nil
}

func (m *memSubscriptionStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		n += len(s)
	}
	return n
}

// fakeFetcher serves canned feeds by url. A held url answers only after its
// delay, or fails once the context is done.
type fakeFetcher struct {
	mu     sync.Mutex
	feeds  map[string]*domain.Feed
	errors map[string]error
	holds  map[string]time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		feeds:  make(map[string]*domain.Feed),
		errors: make(map[string]error),
		holds:  make(map[string]time.Duration),
	}
}

func (f *fakeFetcher) hold(url string, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds[url] = delay
}

func (f *fakeFetcher) set(url string, feed *domain.Feed) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds[url] = feed
	delete(f.errors, url)
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[url] = err
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*domain.Feed, error) {
	f.mu.Lock()
	delay, held := f.holds[url]
	f.mu.Unlock()
	if held {
		select {
		case <-ctx.Done():
			return nil, domain.NewFeedError(domain.ErrNetwork, url, ctx.Err())
		case <-time.After(delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errors[url]; ok {
		return nil, err
	}
	feed, ok := f.feeds[url]
	if !ok {
		return nil, &domain.FeedError{Kind: domain.ErrInvalidFeedURL, URL: url, StatusCode: 404}
	}
	cp := *feed
	cp.Announcements = append([]domain.Announcement(nil), feed.Announcements...)
	return &cp, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
