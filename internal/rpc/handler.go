// Package rpc serves the announcement service over the Connect protocol.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"announcement_relay/internal/domain"
	"announcement_relay/internal/service"
)

const ServiceName = "announcements.v1.AnnouncementService"

const (
	HelloProcedure            = "/" + ServiceName + "/Hello"
	ListFeedsProcedure        = "/" + ServiceName + "/ListFeeds"
	NewAnnouncementsProcedure = "/" + ServiceName + "/NewAnnouncements"
	SubscribeProcedure        = "/" + ServiceName + "/Subscribe"
)

type AnnouncementService interface {
	ListFeeds(ctx context.Context, cutoff *time.Time, send service.BatchSink) error
	NewAnnouncements(ctx context.Context, sink string, send service.BatchSink) (*domain.SyncStats, error)
}

type SubscribeService interface {
	Subscribe(ctx context.Context, sourceURL string, sub domain.Subscriber) (string, error)
}

type Handler struct {
	announcements AnnouncementService
	subscriptions SubscribeService
	logger        *slog.Logger
}

func NewHandler(announcements AnnouncementService, subscriptions SubscribeService, logger *slog.Logger) *Handler {
	return &Handler{
		announcements: announcements,
		subscriptions: subscriptions,
		logger:        logger.With("component", "rpc"),
	}
}

// NewAnnouncementServiceHandler builds an HTTP handler for every procedure of
// the service. The returned path is the prefix to mount it on.
func NewAnnouncementServiceHandler(h *Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(HelloProcedure, connect.NewUnaryHandler(HelloProcedure, h.Hello, opts...))
	mux.Handle(ListFeedsProcedure, connect.NewServerStreamHandler(ListFeedsProcedure, h.ListFeeds, opts...))
	mux.Handle(NewAnnouncementsProcedure, connect.NewServerStreamHandler(NewAnnouncementsProcedure, h.NewAnnouncements, opts...))
	mux.Handle(SubscribeProcedure, connect.NewUnaryHandler(SubscribeProcedure, h.Subscribe, opts...))

	return "/" + ServiceName + "/", mux
}

func (h *Handler) Hello(
	ctx context.Context,
	req *connect.Request[HelloRequest],
) (*connect.Response[HelloReply], error) {
	return connect.NewResponse(&HelloReply{
		Message: fmt.Sprintf("Hello %s!", req.Msg.Name),
	}), nil
}

// ListFeeds streams the announcements of every tracked feed without touching
// checkpoints.
func (h *Handler) ListFeeds(
	ctx context.Context,
	req *connect.Request[ListFeedsRequest],
	stream *connect.ServerStream[FeedReply],
) error {
	var cutoff *time.Time
	if after := req.Msg.After; after != nil {
		if err := after.CheckValid(); err != nil {
			return connect.NewError(connect.CodeInvalidArgument, errors.New("after is not a valid timestamp"))
		}
		t := after.AsTime()
		cutoff = &t
	}

	send, sendErr := h.sender(stream)
	if err := h.announcements.ListFeeds(ctx, cutoff, send); err != nil {
		if *sendErr != nil {
			return *sendErr
		}
		h.logger.Error("list feeds failed", "error", err)
		return streamError(ctx, err)
	}

	return nil
}

// NewAnnouncements runs a sync and streams one reply per feed with new
// announcements, including the feed's subscribers.
func (h *Handler) NewAnnouncements(
	ctx context.Context,
	req *connect.Request[NewAnnouncementsRequest],
	stream *connect.ServerStream[FeedReply],
) error {
	send, sendErr := h.sender(stream)
	stats, err := h.announcements.NewAnnouncements(ctx, "rpc", send)
	if err != nil {
		if *sendErr != nil {
			return *sendErr
		}
		h.logger.Error("new announcements failed", "error", err)
		return streamError(ctx, err)
	}

	h.logger.Debug("new announcements streamed", "sync_id", stats.SyncID, "batches", stats.Batches)

	return nil
}

// Subscribe always answers with a SubscribeResponse; failures are reported
// through its message.
func (h *Handler) Subscribe(
	ctx context.Context,
	req *connect.Request[SubscribeRequest],
) (*connect.Response[SubscribeResponse], error) {
	if req.Msg.Subscriber == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("subscriber is required"))
	}

	sub := domain.Subscriber{
		ServerID:  req.Msg.Subscriber.ServerID,
		ChannelID: req.Msg.Subscriber.ChannelID,
	}

	title, err := h.subscriptions.Subscribe(ctx, req.Msg.Feed, sub)
	if err != nil {
		h.logger.Info("subscribe failed", "url", req.Msg.Feed, "error", err)
	}

	return connect.NewResponse(subscribeResponse(title, err)), nil
}

// sender adapts a server stream to a BatchSink. The returned pointer holds the
// first send error so callers can tell client disconnects from service
// failures.
func (h *Handler) sender(stream *connect.ServerStream[FeedReply]) (service.BatchSink, *error) {
	var sendErr error
	send := func(_ context.Context, batch *domain.FeedBatch) error {
		if err := stream.Send(toFeedReply(batch)); err != nil {
			sendErr = err
			return err
		}
		return nil
	}
	return send, &sendErr
}
