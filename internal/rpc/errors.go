package rpc

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"announcement_relay/internal/domain"
)

// User-facing Subscribe messages.
const (
	msgInvalidURL        = "Looks like you passed an invalid feed url"
	msgDeserialization   = "Failed to read the url as an announcement feed"
	msgAlreadySubscribed = "This channel is already subscribed to that feed"
	msgGeneric           = "Oops something went wrong"

	msgRetrieveFeeds = "failed to retrieve feeds"
)

// subscribeResponse converts a Subscribe result into the reply shown to the
// user. Error text never leaves this function.
func subscribeResponse(title string, err error) *SubscribeResponse {
	if err == nil {
		return &SubscribeResponse{
			Success: true,
			Message: fmt.Sprintf("Placed a subscription for '%s'", title),
		}
	}

	var msg string
	switch {
	case errors.Is(err, domain.ErrAlreadySubscribed):
		msg = msgAlreadySubscribed
	case errors.Is(err, domain.ErrInvalidFeedURL):
		msg = msgInvalidURL
	case errors.Is(err, domain.ErrDeserialization):
		msg = msgDeserialization
	default:
		msg = msgGeneric
	}
	return &SubscribeResponse{Success: false, Message: msg}
}

// streamError maps a failed streaming call onto a connect error with a fixed
// message.
func streamError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		return connect.NewError(connect.CodeCanceled, errors.New("request canceled"))
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		return connect.NewError(connect.CodeDeadlineExceeded, errors.New("request deadline exceeded"))
	default:
		return connect.NewError(connect.CodeInternal, errors.New(msgRetrieveFeeds))
	}
}
