package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/larder/internal/identity"
	"github.com/mmynk/larder/internal/metrics"
)

// LoggingInterceptor logs one line per RPC. Failed coordinator protocols
// carry the protocol and step they stopped at. Caller mistakes log at warn
// and backend failures at error.
func LoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []any{
				"procedure", req.Spec().Procedure,
				"user_id", identity.UserID(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err == nil {
				logger.Info("RPC ok", attrs...)
				return resp, nil
			}

			code := connect.CodeOf(err)
			attrs = append(attrs, "code", code)
			var cerr *connect.Error
			if errors.As(err, &cerr) {
				attrs = append(attrs, "error", cerr.Message())
				if protocol := cerr.Meta().Get("Larder-Protocol"); protocol != "" {
					attrs = append(attrs, "protocol", protocol, "step", cerr.Meta().Get("Larder-Step"))
				}
			} else {
				attrs = append(attrs, "error", err)
			}
			if serverFault(code) {
				logger.Error("RPC failed", attrs...)
			} else {
				logger.Warn("RPC rejected", attrs...)
			}
			return resp, err
		}
	}
}

func serverFault(code connect.Code) bool {
	switch code {
	case connect.CodeUnknown, connect.CodeInternal, connect.CodeUnavailable, connect.CodeDataLoss:
		return true
	}
	return false
}

// MetricsInterceptor counts RPCs by procedure and result code.
func MetricsInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			resp, err := next(ctx, req)
			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			metrics.RPCRequests.WithLabelValues(req.Spec().Procedure, code).Inc()
			return resp, err
		}
	}
}
