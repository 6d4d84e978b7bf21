// Package push delivers mobile push notifications through SNS platform
// endpoints. Delivery is best-effort: the gateway reports success as a
// bool and the caller never blocks on it beyond the publish call.
package push

import (
	"context"
	"log/slog"
)

// Gateway is the push delivery interface the notification service
// depends on. A token is the user's registered platform endpoint ARN.
type Gateway interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) bool
}

// unavailable is the fallback gateway used when no push backend is
// configured. Every send is a logged no-op.
type unavailable struct {
	logger *slog.Logger
}

// Unavailable returns a gateway that drops every push with a warning.
func Unavailable(logger *slog.Logger) Gateway {
	return &unavailable{logger: logger}
}

func (u *unavailable) Send(ctx context.Context, token, title, body string, data map[string]string) bool {
	u.logger.Warn("push gateway not configured, dropping push", "title", title)
	return false
}
