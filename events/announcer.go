package events

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// Sayer sends one chat line; implemented by IRCSource.
type Sayer interface {
	Say(text string) error
}

// Announcer is the single outbound chat path. A token-bucket limiter keeps the
// bot inside Twitch's message budget; callers block briefly rather than drop.
type Announcer struct {
	Chat    Sayer
	Limiter *rate.Limiter
}

// NewAnnouncer allows roughly 20 messages per 30 seconds, the standard budget
// for a non-moderator bot account.
func NewAnnouncer(chat Sayer) *Announcer {
	return &Announcer{Chat: chat, Limiter: rate.NewLimiter(rate.Limit(20.0/30.0), 5)}
}

// Announce sends text to chat, waiting for rate-limit headroom. Failures are
// logged, never propagated: a missed announcement must not fail a command.
func (a *Announcer) Announce(ctx context.Context, text string) {
	if a == nil || a.Chat == nil || text == "" {
		return
	}
	if a.Limiter != nil {
		if err := a.Limiter.Wait(ctx); err != nil {
			return
		}
	}
	if err := a.Chat.Say(text); err != nil {
		slog.Warn("chat announce failed", slog.Any("err", err), slog.String("component", "events"))
	}
}
