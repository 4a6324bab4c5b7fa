package commands

import (
	"fmt"
	"strings"

	"github.com/onnwee/clip-tender/events"
)

// Parse recognizes chat commands. It returns (nil, nil) for ordinary chat,
// (cmd, nil) for a recognized command, and (nil, err) for a command with a
// usage problem; the error message is safe to announce in chat.
func Parse(msg events.ChatMessage) (ChatCommand, error) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "!") {
		return nil, nil
	}
	fields := strings.Fields(text)
	head := strings.ToLower(fields[0])
	args := fields[1:]

	switch head {
	case "!watch":
		if len(args) == 0 {
			return nil, fmt.Errorf("usage: !watch <clip url> or !watch @channel <search terms>")
		}
		if strings.HasPrefix(args[0], "@") {
			broadcaster := strings.TrimPrefix(args[0], "@")
			terms := strings.TrimSpace(strings.Join(args[1:], " "))
			if broadcaster == "" || terms == "" {
				return nil, fmt.Errorf("usage: !watch @channel <search terms>")
			}
			return WatchSearch{Msg: msg, Broadcaster: broadcaster, Terms: terms}, nil
		}
		return WatchClip{Msg: msg, Ref: args[0]}, nil
	case "!stop":
		return StopPlayback{Msg: msg}, nil
	case "!replay":
		return ReplayLast{Msg: msg}, nil
	case "!so", "!shoutout":
		if len(args) == 0 {
			return nil, fmt.Errorf("usage: %s @channel", head)
		}
		target := strings.TrimPrefix(args[0], "@")
		if target == "" {
			return nil, fmt.Errorf("usage: %s @channel", head)
		}
		return Shoutout{Msg: msg, Target: target}, nil
	}
	// Unknown bang words belong to other bots.
	return nil, nil
}
