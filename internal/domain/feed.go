package domain

import "time"

// Epoch is the checkpoint of a feed that has never delivered anything.
var Epoch = time.Unix(0, 0).UTC()

// TrackedFeed is a feed polled on behalf of subscribers.
type TrackedFeed struct {
	ID          int64
	CanonicalID string
	SourceURL   string   // primary source
	BackupURLs  []string // same canonical feed reachable elsewhere, tried in order
	Checkpoint  time.Time
}

// SourceURLs returns the primary source followed by the backups.
func (f TrackedFeed) SourceURLs() []string {
	urls := make([]string, 0, len(f.BackupURLs)+1)
	if f.SourceURL != "" {
		urls = append(urls, f.SourceURL)
	}
	return append(urls, f.BackupURLs...)
}

type Announcement struct {
	Title     string    `json:"title"`
	EntryID   string    `json:"entry_id"`
	Updated   time.Time `json:"updated"`
	Published time.Time `json:"published"`
	Link      string    `json:"link"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
}

// Feed is the parsed result of a single fetch. Only CanonicalID is ever persisted.
type Feed struct {
	CanonicalID   string
	Title         string
	Updated       time.Time
	Announcements []Announcement
}

type Subscriber struct {
	ServerID  string `json:"server_id" db:"server_id"`
	ChannelID string `json:"channel_id" db:"channel_id"`
}

type Subscription struct {
	FeedID     int64
	Subscriber Subscriber
}

// FeedBatch is one fan-out unit: a feed's announcements and who should receive them.
type FeedBatch struct {
	FeedID        int64          `json:"feed_id"`
	CanonicalID   string         `json:"canonical_id"`
	Title         string         `json:"title"`
	Announcements []Announcement `json:"announcements"`
	Subscribers   []Subscriber   `json:"subscribers"`
}
