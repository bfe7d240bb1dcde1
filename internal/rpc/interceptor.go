package rpc

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

type loggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor logs every unary call and every server stream
// handled.
func NewLoggingInterceptor(logger *slog.Logger) connect.Interceptor {
	return &loggingInterceptor{logger: logger.With("component", "rpc")}
}

func (i *loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}

		start := time.Now()
		i.logger.Info("request received",
			"procedure", req.Spec().Procedure,
			"peer", req.Peer().Addr,
		)

		resp, err := next(ctx, req)
		i.done(req.Spec().Procedure, start, err)

		return resp, err
	}
}

func (i *loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		i.logger.Info("stream opened",
			"procedure", conn.Spec().Procedure,
			"peer", conn.Peer().Addr,
		)

		err := next(ctx, conn)
		i.done(conn.Spec().Procedure, start, err)

		return err
	}
}

func (i *loggingInterceptor) done(procedure string, start time.Time, err error) {
	if err != nil {
		i.logger.Error("request failed",
			"procedure", procedure,
			"code", connect.CodeOf(err).String(),
			"error", err,
			"duration", time.Since(start),
		)
		return
	}
	i.logger.Info("request completed",
		"procedure", procedure,
		"duration", time.Since(start),
	)
}
