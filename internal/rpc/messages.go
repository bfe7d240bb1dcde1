package rpc

import (
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"announcement_relay/internal/domain"
)

type HelloRequest struct {
	Name string `json:"name"`
}

type HelloReply struct {
	Message string `json:"message"`
}

// ListFeedsRequest asks for every tracked feed. When After is set only
// announcements published strictly after it are returned.
type ListFeedsRequest struct {
	After *timestamppb.Timestamp `json:"after,omitempty"`
}

type NewAnnouncementsRequest struct{}

type Subscriber struct {
	ServerID  string `json:"server_id"`
	ChannelID string `json:"channel_id"`
}

type AnnouncementReply struct {
	Title     string                 `json:"title"`
	EntryID   string                 `json:"entry_id"`
	Published *timestamppb.Timestamp `json:"published,omitempty"`
	Updated   *timestamppb.Timestamp `json:"updated,omitempty"`
	Link      string                 `json:"link"`
	Author    string                 `json:"author"`
	Content   string                 `json:"content"`
}

// FeedReply is one streamed FeedBatch.
type FeedReply struct {
	ID            int64               `json:"id"`
	CanonicalID   string              `json:"canonical_id"`
	Title         string              `json:"title"`
	Announcements []AnnouncementReply `json:"announcements"`
	Subscribers   []Subscriber        `json:"subscribers"`
}

type SubscribeRequest struct {
	Feed       string      `json:"feed"`
	Subscriber *Subscriber `json:"subscriber,omitempty"`
}

type SubscribeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func toFeedReply(batch *domain.FeedBatch) *FeedReply {
	reply := &FeedReply{
		ID:            batch.FeedID,
		CanonicalID:   batch.CanonicalID,
		Title:         batch.Title,
		Announcements: make([]AnnouncementReply, 0, len(batch.Announcements)),
		Subscribers:   make([]Subscriber, 0, len(batch.Subscribers)),
	}

	for _, a := range batch.Announcements {
		reply.Announcements = append(reply.Announcements, AnnouncementReply{
			Title:     a.Title,
			EntryID:   a.EntryID,
			Published: timestamp(a.Published),
			Updated:   timestamp(a.Updated),
			Link:      a.Link,
			Author:    a.Author,
			Content:   a.Content,
		})
	}
	for _, s := range batch.Subscribers {
		reply.Subscribers = append(reply.Subscribers, Subscriber{ServerID: s.ServerID, ChannelID: s.ChannelID})
	}

	return reply
}

func timestamp(t time.Time) *timestamppb.Timestamp {
	if t.IsZero() {
		return nil
	}
	return timestamppb.New(t)
}
