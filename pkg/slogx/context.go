package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request-scoped logger, or slog.Default when none
// has been attached.
func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

func WithRequestID(ctx context.Context, reqID string) context.Context {
	return WithContext(ctx, FromContext(ctx).With("req_id", reqID))
}

// WithTpp tags the logger with the authenticated TPP.
func WithTpp(ctx context.Context, tppID string) context.Context {
	return WithContext(ctx, FromContext(ctx).With("tpp_id", tppID))
}

// WithConsent tags the logger with the consent a request operates on.
func WithConsent(ctx context.Context, consentID string) context.Context {
	return WithContext(ctx, FromContext(ctx).With("consent_id", consentID))
}
