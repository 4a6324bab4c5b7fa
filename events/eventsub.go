package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nhooyr.io/websocket"
)

const defaultEventSubURL = "wss://eventsub.wss.twitch.tv/ws"

var errReconnectRequested = errors.New("eventsub: session reconnect requested")

// EventSubSource is the push/WebSocket subscription feed. After the welcome
// handshake it asks Subscribe to register the session's subscriptions
// (channel.chat.message, channel.raid) and then normalizes notifications.
type EventSubSource struct {
	URL string // override for tests; defaults to the public EventSub endpoint
	// Subscribe registers the subscriptions for a fresh session id. Returning
	// an error aborts the session (e.g., no valid user token yet).
	Subscribe func(ctx context.Context, sessionID string) error
}

func (s *EventSubSource) Name() string { return "eventsub" }

type eventSubEnvelope struct {
	Metadata struct {
		MessageID        string `json:"message_id"`
		MessageType      string `json:"message_type"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"metadata"`
	Payload json.RawMessage `json:"payload"`
}

type eventSubSession struct {
	Session struct {
		ID                      string `json:"id"`
		KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
		ReconnectURL            string `json:"reconnect_url"`
	} `json:"session"`
}

type chatMessagePayload struct {
	Event struct {
		BroadcasterUserID    string `json:"broadcaster_user_id"`
		BroadcasterUserLogin string `json:"broadcaster_user_login"`
		ChatterUserID        string `json:"chatter_user_id"`
		ChatterUserLogin     string `json:"chatter_user_login"`
		ChatterUserName      string `json:"chatter_user_name"`
		MessageID            string `json:"message_id"`
		Message              struct {
			Text string `json:"text"`
		} `json:"message"`
		Badges []struct {
			SetID string `json:"set_id"`
		} `json:"badges"`
	} `json:"event"`
}

type raidPayload struct {
	Event struct {
		FromBroadcasterUserID    string `json:"from_broadcaster_user_id"`
		FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
		Viewers                  int    `json:"viewers"`
	} `json:"event"`
}

// Run dials the EventSub endpoint and blocks until the session drops, the
// server requests a reconnect, or ctx is canceled.
func (s *EventSubSource) Run(ctx context.Context, emit func(TwitchEvent)) error {
	url := s.URL
	if url == "" {
		url = defaultEventSubURL
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("eventsub dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done") //nolint:errcheck // best-effort close on exit

	// Until the welcome arrives the server allows a short handshake window.
	keepalive := 10 * time.Second

	for {
		readCtx, cancel := context.WithTimeout(ctx, keepalive*2)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("eventsub read: %w", err)
		}
		var env eventSubEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("eventsub: undecodable frame", slog.Any("err", err), slog.String("component", "events"))
			continue
		}
		switch env.Metadata.MessageType {
		case "session_welcome":
			var sess eventSubSession
			if err := json.Unmarshal(env.Payload, &sess); err != nil {
				return fmt.Errorf("eventsub welcome decode: %w", err)
			}
			if sess.Session.KeepaliveTimeoutSeconds > 0 {
				keepalive = time.Duration(sess.Session.KeepaliveTimeoutSeconds) * time.Second
			}
			if s.Subscribe != nil {
				if err := s.Subscribe(ctx, sess.Session.ID); err != nil {
					return fmt.Errorf("eventsub subscribe: %w", err)
				}
			}
			slog.Info("eventsub session established", slog.String("session_id", sess.Session.ID), slog.String("component", "events"))
		case "session_keepalive":
			// nothing to do; the read deadline is the liveness check
		case "session_reconnect":
			// Dropping back to the coordinator's retry loop loses at most the
			// gap the IRC feed and dedup window already cover.
			return errReconnectRequested
		case "revocation":
			slog.Warn("eventsub subscription revoked", slog.String("type", env.Metadata.SubscriptionType), slog.String("component", "events"))
		case "notification":
			s.handleNotification(env, emit)
		default:
			slog.Debug("eventsub: unhandled message type", slog.String("type", env.Metadata.MessageType), slog.String("component", "events"))
		}
	}
}

func (s *EventSubSource) handleNotification(env eventSubEnvelope, emit func(TwitchEvent)) {
	switch env.Metadata.SubscriptionType {
	case "channel.chat.message":
		var p chatMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			slog.Warn("eventsub: chat message decode failed", slog.Any("err", err), slog.String("component", "events"))
			return
		}
		e := p.Event
		msg := ChatMessage{
			ID:          e.MessageID,
			Username:    strings.ToLower(e.ChatterUserLogin),
			DisplayName: e.ChatterUserName,
			Channel:     strings.ToLower(e.BroadcasterUserLogin),
			UserID:      e.ChatterUserID,
			ChannelID:   e.BroadcasterUserID,
			Text:        e.Message.Text,
		}
		for _, b := range e.Badges {
			switch b.SetID {
			case "moderator":
				msg.IsModerator = true
			case "vip":
				msg.IsVIP = true
			case "broadcaster":
				msg.IsBroadcaster = true
				msg.IsModerator = true
			case "subscriber", "founder":
				msg.IsSubscriber = true
			}
		}
		emit(ChatMessageEvent{Message: msg})
	case "channel.raid":
		var p raidPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			slog.Warn("eventsub: raid decode failed", slog.Any("err", err), slog.String("component", "events"))
			return
		}
		emit(RaidEvent{
			ID:             env.Metadata.MessageID,
			RaiderUsername: strings.ToLower(p.Event.FromBroadcasterUserLogin),
			RaiderID:       p.Event.FromBroadcasterUserID,
			ViewerCount:    p.Event.Viewers,
		})
	}
}
