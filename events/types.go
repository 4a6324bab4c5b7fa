// Package events ingests raw Twitch activity from two independent live feeds
// (the EventSub WebSocket and the legacy IRC chat protocol), normalizes it
// into canonical events, deduplicates across the feeds, and dispatches a
// single ordered stream to one downstream consumer.
package events

// ChatMessage is the normalized, source-agnostic shape of one chat line.
// Immutable; consumed read-only downstream.
type ChatMessage struct {
	ID          string
	Username    string
	DisplayName string
	Channel     string
	UserID      string
	ChannelID   string
	Text        string

	IsModerator   bool
	IsVIP         bool
	IsBroadcaster bool
	IsSubscriber  bool
}

// TwitchEvent is the canonical unit the coordinator emits.
type TwitchEvent interface {
	isTwitchEvent()
	// EventID is the platform identifier used for cross-source deduplication;
	// empty means the event cannot be deduplicated and is always delivered.
	EventID() string
}

// ChatMessageEvent wraps a normalized chat message.
type ChatMessageEvent struct {
	Message ChatMessage
}

func (ChatMessageEvent) isTwitchEvent() {}

func (e ChatMessageEvent) EventID() string { return e.Message.ID }

// RaidEvent signals an incoming raid on the monitored channel.
type RaidEvent struct {
	ID             string
	RaiderUsername string
	RaiderID       string
	ViewerCount    int
}

func (RaidEvent) isTwitchEvent() {}

func (e RaidEvent) EventID() string { return e.ID }
