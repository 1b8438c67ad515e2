package api

import (
	"context"
	"time"

	"turnero/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const requestIDMetadataKey = "x-request-id"

// LoggingUnaryInterceptor tags every call with a request id, echoes it in
// the response header and logs the outcome. Server-side failures log at
// error level.
func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		requestID := firstValue(md, requestIDMetadataKey)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		started := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		metrics.IncHTTP("grpc " + info.FullMethod)

		event := log.Info()
		switch code {
		case codes.Internal, codes.Unknown, codes.Unavailable:
			event = log.Error().Err(err)
		}
		event.
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", peerAddr(ctx)).
			Str("code", code.String()).
			Dur("duration", time.Since(started)).
			Msg("grpc request")

		return resp, err
	}
}
