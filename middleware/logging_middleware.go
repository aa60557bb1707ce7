package middleware

import (
	"context"
	"time"

	"broker-rpc/message"

	"go.uber.org/zap"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Output, error) {
			start := time.Now()
			out, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("id", req.ID),
				zap.Stringer("object", req.Object),
				zap.String("method", req.Method),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				logger.Warn("dispatch failed", append(fields, zap.Error(err))...)
			case out != nil && out.Error != nil:
				logger.Info("call returned error", append(fields, zap.String("error", out.Error.Message))...)
			default:
				logger.Debug("call handled", fields...)
			}
			return out, err
		}
	}
}
