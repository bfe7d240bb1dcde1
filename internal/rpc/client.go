package rpc

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Client calls a relay server.
type Client struct {
	hello            *connect.Client[HelloRequest, HelloReply]
	listFeeds        *connect.Client[ListFeedsRequest, FeedReply]
	newAnnouncements *connect.Client[NewAnnouncementsRequest, FeedReply]
	subscribe        *connect.Client[SubscribeRequest, SubscribeResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	return &Client{
		hello:            connect.NewClient[HelloRequest, HelloReply](httpClient, baseURL+HelloProcedure, opts...),
		listFeeds:        connect.NewClient[ListFeedsRequest, FeedReply](httpClient, baseURL+ListFeedsProcedure, opts...),
		newAnnouncements: connect.NewClient[NewAnnouncementsRequest, FeedReply](httpClient, baseURL+NewAnnouncementsProcedure, opts...),
		subscribe:        connect.NewClient[SubscribeRequest, SubscribeResponse](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

func (c *Client) Hello(ctx context.Context, name string) (string, error) {
	resp, err := c.hello.CallUnary(ctx, connect.NewRequest(&HelloRequest{Name: name}))
	if err != nil {
		return "", err
	}
	return resp.Msg.Message, nil
}

// ListFeeds calls fn for each streamed feed. A nil after lists everything.
func (c *Client) ListFeeds(ctx context.Context, after *time.Time, fn func(*FeedReply) error) error {
	req := &ListFeedsRequest{}
	if after != nil {
		req.After = timestamppb.New(*after)
	}

	stream, err := c.listFeeds.CallServerStream(ctx, connect.NewRequest(req))
	if err != nil {
		return err
	}
	return drain(stream, fn)
}

// NewAnnouncements triggers a sync on the server and calls fn for each feed
// with new announcements.
func (c *Client) NewAnnouncements(ctx context.Context, fn func(*FeedReply) error) error {
	stream, err := c.newAnnouncements.CallServerStream(ctx, connect.NewRequest(&NewAnnouncementsRequest{}))
	if err != nil {
		return err
	}
	return drain(stream, fn)
}

func (c *Client) Subscribe(ctx context.Context, feedURL string, sub Subscriber) (*SubscribeResponse, error) {
	resp, err := c.subscribe.CallUnary(ctx, connect.NewRequest(&SubscribeRequest{
		Feed:       feedURL,
		Subscriber: &sub,
	}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func drain(stream *connect.ServerStreamForClient[FeedReply], fn func(*FeedReply) error) error {
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	return stream.Err()
}
