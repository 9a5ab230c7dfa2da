package main

import (
	"context"
	"time"

	"github.com/MrEthical07/inkauth/identity"
	"github.com/rs/zerolog"
)

// logNotifier stands in for a mailer. Tokens are only written out when
// revealTokens is set, which main limits to non-production runs.
type logNotifier struct {
	log          zerolog.Logger
	revealTokens bool
}

func (n logNotifier) SendPasswordReset(_ context.Context, ident *identity.Identity, token string, expiresAt time.Time) error {
	n.send("password reset", ident, token, expiresAt)
	return nil
}

func (n logNotifier) SendEmailVerification(_ context.Context, ident *identity.Identity, token string, expiresAt time.Time) error {
	n.send("email verification", ident, token, expiresAt)
	return nil
}

func (n logNotifier) send(kind string, ident *identity.Identity, token string, expiresAt time.Time) {
	ev := n.log.Info().
		Str("kind", kind).
		Str("identity_id", ident.ID).
		Time("expires_at", expiresAt)
	if n.revealTokens {
		ev = ev.Str("token", token)
	}
	ev.Msg("notification queued")
}
