package events

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// IRCSource is the legacy chat-protocol feed. It normalizes PRIVMSG lines into
// ChatMessageEvents and raid USERNOTICEs into RaidEvents. When no user token
// is available it falls back to an anonymous (read-only) connection so command
// ingestion keeps working while authorization is pending.
type IRCSource struct {
	Channel     string
	BotUsername string
	// Token supplies the bot's chat token; ok=false selects anonymous mode.
	Token func(ctx context.Context) (token string, ok bool)

	mu     sync.Mutex
	client *twitch.Client
}

func (s *IRCSource) Name() string { return "irc" }

// Run connects and blocks until the connection drops or ctx is canceled.
func (s *IRCSource) Run(ctx context.Context, emit func(TwitchEvent)) error {
	if s.Channel == "" {
		return errors.New("irc: channel is required")
	}

	var client *twitch.Client
	if tok, ok := s.tokenFor(ctx); ok {
		client = twitch.NewClient(s.BotUsername, "oauth:"+strings.TrimPrefix(tok, "oauth:"))
	} else {
		slog.Info("no chat token available; connecting anonymously", slog.String("component", "irc"))
		client = twitch.NewAnonymousClient()
	}

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		emit(ChatMessageEvent{Message: normalizePrivateMessage(msg)})
	})
	client.OnUserNoticeMessage(func(msg twitch.UserNoticeMessage) {
		if msg.MsgID != "raid" {
			return
		}
		viewers, _ := strconv.Atoi(msg.MsgParams["msg-param-viewerCount"])
		emit(RaidEvent{
			ID:             msg.ID,
			RaiderUsername: strings.ToLower(msg.User.Name),
			RaiderID:       msg.User.ID,
			ViewerCount:    viewers,
		})
	})
	client.OnConnect(func() {
		slog.Info("irc connected", slog.String("channel", s.Channel), slog.String("component", "irc"))
	})

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.client = nil
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := client.Disconnect(); err != nil {
				slog.Debug("irc disconnect", slog.Any("err", err), slog.String("component", "irc"))
			}
		case <-done:
		}
	}()

	client.Join(s.Channel)
	return client.Connect()
}

// Say sends a chat line on the active connection. Fails when disconnected.
func (s *IRCSource) Say(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return errors.New("irc: not connected")
	}
	s.client.Say(s.Channel, text)
	return nil
}

func (s *IRCSource) tokenFor(ctx context.Context) (string, bool) {
	if s.Token == nil {
		return "", false
	}
	return s.Token(ctx)
}

func normalizePrivateMessage(msg twitch.PrivateMessage) ChatMessage {
	badges := msg.User.Badges
	return ChatMessage{
		ID:            msg.ID,
		Username:      strings.ToLower(msg.User.Name),
		DisplayName:   msg.User.DisplayName,
		Channel:       strings.ToLower(msg.Channel),
		UserID:        msg.User.ID,
		ChannelID:     msg.RoomID,
		Text:          msg.Message,
		IsModerator:   badges["moderator"] > 0 || badges["broadcaster"] > 0,
		IsVIP:         badges["vip"] > 0,
		IsBroadcaster: badges["broadcaster"] > 0,
		IsSubscriber:  badges["subscriber"] > 0 || badges["founder"] > 0,
	}
}
