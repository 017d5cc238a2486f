// Package notify delivers out-of-band messages to users, such as the
// email verification link.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// VerificationMessage asks a mailer to send an email verification link.
type VerificationMessage struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Notifier interface {
	SendVerification(ctx context.Context, msg VerificationMessage) error
}

// LogNotifier writes messages to the log instead of delivering them.
// It is used when no broker is configured (local development).
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) SendVerification(ctx context.Context, msg VerificationMessage) error {
	n.Log.Info().
		Str("user_id", msg.UserID).
		Str("email", msg.Email).
		Str("url", msg.URL).
		Time("expires_at", msg.ExpiresAt).
		Msg("verification email (not sent, no broker configured)")
	return nil
}
