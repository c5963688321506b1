// Package notify delivers single-use tokens to their owners out of band.
package notify

import (
	"context"
	"log/slog"
)

// Notifier sends verification and password-reset tokens. A real deployment
// would send email; the service only needs the token to leave the process.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogNotifier writes tokens to the log at debug level. It is the
// development stand-in for an email sender.
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerification(ctx context.Context, email, token string) error {
	n.logger.DebugContext(ctx, "verification token issued",
		slog.String("email", email),
		slog.String("token", token),
		slog.String("link", "/api/verifyemail/"+token),
	)
	return nil
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	n.logger.DebugContext(ctx, "password reset token issued",
		slog.String("email", email),
		slog.String("token", token),
	)
	return nil
}
