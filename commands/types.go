// Package commands parses chat commands, enforces permissions and the
// moderator approval workflow, and drives the playback engine.
package commands

import (
	"github.com/onnwee/clip-tender/events"
	"github.com/onnwee/clip-tender/twitchapi"
)

// ChatCommand is the parsed form of one recognized chat command.
type ChatCommand interface {
	isChatCommand()
	// Requester returns the chat message the command came from.
	Requester() events.ChatMessage
}

// WatchClip plays a specific clip identified by URL or slug.
type WatchClip struct {
	Msg events.ChatMessage
	Ref string
}

// WatchSearch asks for a clip from a broadcaster matching search terms.
// Playing the result requires moderator approval.
type WatchSearch struct {
	Msg         events.ChatMessage
	Broadcaster string
	Terms       string
}

// StopPlayback interrupts the currently playing clip.
type StopPlayback struct {
	Msg events.ChatMessage
}

// ReplayLast plays the last successfully played clip again.
type ReplayLast struct {
	Msg events.ChatMessage
}

// Shoutout plays a random clip from the target and issues the platform
// shoutout.
type Shoutout struct {
	Msg    events.ChatMessage
	Target string
}

func (WatchClip) isChatCommand()    {}
func (WatchSearch) isChatCommand()  {}
func (StopPlayback) isChatCommand() {}
func (ReplayLast) isChatCommand()   {}
func (Shoutout) isChatCommand()     {}

func (c WatchClip) Requester() events.ChatMessage    { return c.Msg }
func (c WatchSearch) Requester() events.ChatMessage  { return c.Msg }
func (c StopPlayback) Requester() events.ChatMessage { return c.Msg }
func (c ReplayLast) Requester() events.ChatMessage   { return c.Msg }
func (c Shoutout) Requester() events.ChatMessage     { return c.Msg }

// Player is the subset of the playback engine the router drives.
type Player interface {
	Enqueue(clip *twitchapi.ClipData) error
	EnqueueShoutout(clip *twitchapi.ClipData) error
	Stop()
	Replay() error
	LastPlayed() *twitchapi.ClipData
}
