package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/onnwee/clip-tender/config"
	"github.com/onnwee/clip-tender/events"
	"github.com/onnwee/clip-tender/telemetry"
	"github.com/onnwee/clip-tender/twitchapi"
)

// ClipAPI is the subset of the Helix client the router needs.
type ClipAPI interface {
	GetClipByID(ctx context.Context, id string) (*twitchapi.ClipData, error)
	GetRandomClip(ctx context.Context, username string, f twitchapi.ClipFilters) (*twitchapi.ClipData, error)
	SearchClip(ctx context.Context, username, query string, f twitchapi.ClipFilters) (*twitchapi.ClipData, error)
	SendShoutout(ctx context.Context, fromBroadcasterID, toBroadcasterID, moderatorID string) error
}

// Announcer sends one line to chat; see events.Announcer.
type Announcer interface {
	Announce(ctx context.Context, text string)
}

// Router turns recognized commands into playback and shoutout actions. It is
// the only consumer of the coordinator's event stream.
type Router struct {
	Cfg   *config.Config
	Helix ClipAPI
	Gate  *Gate
	Play  Player
	Chat  Announcer

	mu          sync.Mutex
	searchCache map[string]*twitchapi.ClipData
}

func NewRouter(cfg *config.Config, helix ClipAPI, gate *Gate, play Player, chat Announcer) *Router {
	return &Router{
		Cfg:         cfg,
		Helix:       helix,
		Gate:        gate,
		Play:        play,
		Chat:        chat,
		searchCache: make(map[string]*twitchapi.ClipData),
	}
}

// HandleEvent is the coordinator's handler: chat lines feed the approval gate
// and the parser; raids optionally trigger an automatic shoutout.
func (r *Router) HandleEvent(ctx context.Context, ev events.TwitchEvent) {
	switch e := ev.(type) {
	case events.ChatMessageEvent:
		r.Gate.Observe(e.Message)
		cmd, err := Parse(e.Message)
		if err != nil {
			telemetry.CommandsRejected.Inc()
			r.announce(ctx, fmt.Sprintf("@%s %v", e.Message.DisplayName, err))
			return
		}
		if cmd == nil {
			return
		}
		// Execution must not hold up event delivery: the approval wait would
		// otherwise stall the very feed carrying the moderator's answer.
		go r.ExecuteCommand(ctx, cmd)
	case events.RaidEvent:
		if !r.Cfg.AutoShoutoutOnRaid || e.RaiderUsername == "" {
			return
		}
		slog.Info("raid received, sending shoutout",
			slog.String("raider", e.RaiderUsername),
			slog.Int("viewers", e.ViewerCount),
			slog.String("component", "commands"))
		go r.doShoutout(ctx, e.RaiderUsername)
	}
}

// ExecuteCommand runs permission checks and dispatches one command. Blocked
// users are dropped before any side effect.
func (r *Router) ExecuteCommand(ctx context.Context, cmd ChatCommand) {
	telemetry.CommandsParsed.Inc()
	req := cmd.Requester()
	if r.Cfg.IsBlocked(req.Username) {
		telemetry.CommandsRejected.Inc()
		slog.Debug("command from blocked user dropped", slog.String("user", req.Username), slog.String("component", "commands"))
		return
	}

	switch c := cmd.(type) {
	case WatchClip:
		r.doWatchClip(ctx, c)
	case WatchSearch:
		r.doWatchSearch(ctx, c)
	case StopPlayback:
		r.Play.Stop()
		r.announce(ctx, "Playback stopped.")
	case ReplayLast:
		if err := r.Play.Replay(); err != nil {
			r.announce(ctx, fmt.Sprintf("@%s nothing to replay yet", req.DisplayName))
		}
	case Shoutout:
		r.doShoutout(ctx, c.Target)
	}
}

func (r *Router) doWatchClip(ctx context.Context, c WatchClip) {
	clip := r.resolveClip(ctx, c.Ref)
	if clip == nil {
		r.announce(ctx, fmt.Sprintf("@%s unable to resolve that clip", c.Msg.DisplayName))
		return
	}
	if err := r.Play.Enqueue(clip); err != nil {
		r.announce(ctx, fmt.Sprintf("@%s queue is full, try again later", c.Msg.DisplayName))
		return
	}
	r.announce(ctx, fmt.Sprintf("Queued \"%s\" for @%s", clip.Title, c.Msg.DisplayName))
}

// resolveClip turns a URL or slug into clip metadata. Malformed input falls
// back to the last played clip so "!watch" after a broken paste still works.
func (r *Router) resolveClip(ctx context.Context, ref string) *twitchapi.ClipData {
	if slug, ok := twitchapi.ParseClipIdentifier(ref); ok {
		clip, err := r.Helix.GetClipByID(ctx, slug)
		if err == nil {
			return clip
		}
		slog.Warn("clip lookup failed", slog.String("slug", slug), slog.Any("err", err), slog.String("component", "commands"))
	}
	return r.Play.LastPlayed()
}

func (r *Router) doWatchSearch(ctx context.Context, c WatchSearch) {
	clip := r.searchClip(ctx, c.Broadcaster, c.Terms)
	if clip == nil {
		r.announce(ctx, fmt.Sprintf("@%s no clip found for %q on @%s", c.Msg.DisplayName, c.Terms, c.Broadcaster))
		return
	}

	// Open the window before the prompt so a decision can never land in the
	// gap between the announcement and the wait.
	if !r.Gate.Open() {
		r.announce(ctx, fmt.Sprintf("@%s another request is already awaiting approval, try again shortly", c.Msg.DisplayName))
		return
	}
	r.announce(ctx, fmt.Sprintf("@%s wants to play \"%s\" from @%s (%.0fs). Mods: approve or deny?",
		c.Msg.DisplayName, clip.Title, clip.Broadcaster.DisplayName, clip.Duration))

	decision := r.Gate.Await(ctx, r.Cfg.ApprovalPollInterval, r.Cfg.ApprovalTimeout)
	switch decision {
	case DecisionApproved:
		telemetry.ApprovalsGranted.Inc()
		if err := r.Play.Enqueue(clip); err != nil {
			r.announce(ctx, "Approved, but the queue is full.")
			return
		}
		r.announce(ctx, fmt.Sprintf("Approved! Queued \"%s\"", clip.Title))
	case DecisionDenied:
		telemetry.ApprovalsDenied.Inc()
		r.announce(ctx, fmt.Sprintf("Request for \"%s\" was denied.", clip.Title))
	default:
		telemetry.ApprovalsTimedOut.Inc()
		r.announce(ctx, fmt.Sprintf("Request for \"%s\" timed out without a decision.", clip.Title))
	}
}

func (r *Router) searchClip(ctx context.Context, broadcaster, terms string) *twitchapi.ClipData {
	key := strings.ToLower(broadcaster + "\x00" + strings.Join(strings.Fields(terms), " "))
	r.mu.Lock()
	cached := r.searchCache[key]
	r.mu.Unlock()
	if cached != nil {
		return cached
	}
	clip, err := r.Helix.SearchClip(ctx, broadcaster, terms, r.filters())
	if err != nil {
		slog.Warn("clip search failed", slog.String("broadcaster", broadcaster), slog.Any("err", err), slog.String("component", "commands"))
		return nil
	}
	r.mu.Lock()
	r.searchCache[key] = clip
	r.mu.Unlock()
	return clip
}

// ClearCache drops all cached search results.
func (r *Router) ClearCache() {
	r.mu.Lock()
	r.searchCache = make(map[string]*twitchapi.ClipData)
	r.mu.Unlock()
}

func (r *Router) doShoutout(ctx context.Context, target string) {
	clip, err := r.Helix.GetRandomClip(ctx, target, r.filters())
	if err != nil {
		slog.Warn("shoutout clip lookup failed", slog.String("target", target), slog.Any("err", err), slog.String("component", "commands"))
		r.announce(ctx, fmt.Sprintf("Go check out @%s!", target))
		return
	}
	if r.Cfg.TwitchChannelID != "" && clip.Broadcaster.ID != "" {
		if err := r.Helix.SendShoutout(ctx, r.Cfg.TwitchChannelID, clip.Broadcaster.ID, r.Cfg.TwitchChannelID); err != nil {
			// Not fatal: the clip still plays and chat still hears about it.
			slog.Warn("helix shoutout failed", slog.String("target", target), slog.Any("err", err), slog.String("component", "commands"))
		}
	}
	if err := r.Play.EnqueueShoutout(clip); err != nil {
		slog.Warn("shoutout queue full", slog.String("target", target), slog.String("component", "commands"))
	}
	r.announce(ctx, fmt.Sprintf("Shoutout to @%s! Enjoy \"%s\"", clip.Broadcaster.DisplayName, clip.Title))
}

func (r *Router) filters() twitchapi.ClipFilters {
	return twitchapi.ClipFilters{
		MaxDurationSeconds: r.Cfg.MaxClipSeconds,
		MaxAgeDays:         r.Cfg.MaxClipAgeDays,
		FeaturedOnly:       r.Cfg.FeaturedOnly,
	}
}

func (r *Router) announce(ctx context.Context, text string) {
	if r.Chat != nil {
		r.Chat.Announce(ctx, text)
	}
}
