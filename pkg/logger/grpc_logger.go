package logger

import (
	"context"
	"path"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewGrpcUnaryServerInterceptor logs unary gRPC calls.
func NewGrpcUnaryServerInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logGrpcCall(logger, info.FullMethod, time.Since(start), err)
		return resp, err
	}
}

// NewGrpcStreamServerInterceptor logs streaming gRPC calls such as health Watch.
func NewGrpcStreamServerInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logGrpcCall(logger, info.FullMethod, time.Since(start), err)
		return err
	}
}

func logGrpcCall(logger *zap.Logger, fullMethod string, duration time.Duration, err error) {
	code := status.Code(err)
	fields := []zap.Field{
		zap.String("grpc.service", path.Dir(fullMethod)[1:]),
		zap.String("grpc.method", path.Base(fullMethod)),
		zap.String("grpc.code", code.String()),
		zap.Duration("grpc.duration", duration),
	}

	switch code {
	case codes.OK:
		logger.Debug("gRPC call completed", fields...)
	case codes.Canceled, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Unavailable, codes.DataLoss:
		logger.Warn("gRPC call failed", append(fields, zap.Error(err))...)
	default:
		logger.Error("gRPC call error", append(fields, zap.Error(err))...)
	}
}
