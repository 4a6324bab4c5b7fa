package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/telemetry"
	"github.com/onnwee/clip-tender/twitchapi"
)

// State is the engine's playback state. At most one clip occupies
// Loading/Playing/Cooldown at a time.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StateCooldown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateCooldown:
		return "cooldown"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// ErrQueueFull signals a bounded queue rejecting an enqueue.
var ErrQueueFull = errors.New("player: queue full")

// ErrNoHistory signals a replay request with nothing played yet.
var ErrNoHistory = errors.New("player: no clip has been played yet")

// Status is a point-in-time snapshot of the engine.
type Status struct {
	State         string              `json:"state"`
	Current       *twitchapi.ClipData `json:"current,omitempty"`
	QueueDepth    int                 `json:"queue_depth"`
	ShoutoutDepth int                 `json:"shoutout_depth"`
	LastPlayed    *twitchapi.ClipData `json:"last_played,omitempty"`
}

// Engine runs the playback workflow. A single driver goroutine owns the state;
// requests arrive over buffered channels so callers never block on playback.
// Shoutout clips get their own queue and always go first; replays slot in
// ahead of the regular queue without disturbing it.
type Engine struct {
	Device         Device
	EndBuffer      time.Duration
	SettleInterval time.Duration
	// Record is called after each completed playback for durable history.
	// Optional; failures are the hook's problem.
	Record func(ctx context.Context, clip *twitchapi.ClipData)

	queue     chan *twitchapi.ClipData
	shoutouts chan *twitchapi.ClipData
	priority  chan *twitchapi.ClipData
	stopCh    chan struct{}

	mu      sync.Mutex
	state   State
	current *twitchapi.ClipData
	last    *twitchapi.ClipData
}

func NewEngine(device Device, queueSize int, endBuffer, settle time.Duration) *Engine {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Engine{
		Device:         device,
		EndBuffer:      endBuffer,
		SettleInterval: settle,
		queue:          make(chan *twitchapi.ClipData, queueSize),
		shoutouts:      make(chan *twitchapi.ClipData, queueSize),
		priority:       make(chan *twitchapi.ClipData, 1),
		stopCh:         make(chan struct{}, 1),
	}
}

// SeedLastPlayed restores replay history, e.g. from the kv store on startup.
func (e *Engine) SeedLastPlayed(clip *twitchapi.ClipData) {
	if clip == nil || clip.ID == "" {
		return
	}
	e.mu.Lock()
	if e.last == nil {
		e.last = clip
	}
	e.mu.Unlock()
}

// Enqueue adds a clip to the regular FIFO queue.
func (e *Engine) Enqueue(clip *twitchapi.ClipData) error {
	if clip == nil || clip.ID == "" {
		return fmt.Errorf("player: refusing to queue empty clip")
	}
	select {
	case e.queue <- clip:
		e.updateDepths()
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueShoutout adds a clip to the shoutout queue, which preempts the
// regular queue between clips.
func (e *Engine) EnqueueShoutout(clip *twitchapi.ClipData) error {
	if clip == nil || clip.ID == "" {
		return fmt.Errorf("player: refusing to queue empty clip")
	}
	select {
	case e.shoutouts <- clip:
		e.updateDepths()
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop interrupts the currently playing clip. No-op when nothing plays.
func (e *Engine) Stop() {
	select {
	case e.stopCh <- struct{}{}:
	default:
	}
}

// Replay queues the last successfully played clip ahead of the regular queue.
func (e *Engine) Replay() error {
	e.mu.Lock()
	last := e.last
	e.mu.Unlock()
	if last == nil {
		return ErrNoHistory
	}
	select {
	case e.priority <- last:
		return nil
	default:
		return ErrQueueFull
	}
}

// LastPlayed returns the most recently completed clip, or nil.
func (e *Engine) LastPlayed() *twitchapi.ClipData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Status returns a snapshot for the status endpoint.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:         e.state.String(),
		Current:       e.current,
		QueueDepth:    len(e.queue),
		ShoutoutDepth: len(e.shoutouts),
		LastPlayed:    e.last,
	}
}

// Run is the driver loop. It blocks until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("playback engine started", slog.String("component", "player"))
	for {
		clip := e.next(ctx)
		if clip == nil {
			slog.Info("playback engine stopped", slog.String("component", "player"))
			return
		}
		e.playOne(ctx, clip)
		e.updateDepths()
	}
}

// next dequeues the next clip, preferring shoutouts, then replays, then the
// regular queue. Returns nil on ctx cancellation.
func (e *Engine) next(ctx context.Context) *twitchapi.ClipData {
	select {
	case clip := <-e.shoutouts:
		return clip
	default:
	}
	select {
	case <-ctx.Done():
		return nil
	case clip := <-e.shoutouts:
		return clip
	case clip := <-e.priority:
		return clip
	case clip := <-e.queue:
		return clip
	}
}

func (e *Engine) playOne(ctx context.Context, clip *twitchapi.ClipData) {
	start := time.Now()
	e.setState(StateLoading, clip)

	// Clear any stop signal left over from a previous clip.
	select {
	case <-e.stopCh:
	default:
	}

	if err := e.Device.Host(ctx, clip); err != nil {
		slog.Error("device host failed, dropping clip",
			slog.String("clip", clip.ID), slog.Any("err", err), slog.String("component", "player"))
		telemetry.ClipsFailed.Inc()
		e.setState(StateIdle, nil)
		return
	}
	if err := e.Device.Play(ctx); err != nil {
		slog.Error("device play failed, dropping clip",
			slog.String("clip", clip.ID), slog.Any("err", err), slog.String("component", "player"))
		telemetry.ClipsFailed.Inc()
		if stopErr := e.Device.Stop(ctx); stopErr != nil {
			slog.Warn("device stop after failed play", slog.Any("err", stopErr), slog.String("component", "player"))
		}
		e.setState(StateIdle, nil)
		return
	}
	e.setState(StatePlaying, clip)
	slog.Info("playing clip",
		slog.String("clip", clip.ID),
		slog.String("title", clip.Title),
		slog.Float64("duration_s", clip.Duration),
		slog.String("component", "player"))

	hold := time.Duration(clip.Duration*float64(time.Second)) + e.EndBuffer
	timer := time.NewTimer(hold)
	defer timer.Stop()

	interrupted := false
	select {
	case <-ctx.Done():
		interrupted = true
	case <-e.stopCh:
		interrupted = true
		slog.Info("playback stopped by request", slog.String("clip", clip.ID), slog.String("component", "player"))
	case <-timer.C:
	}

	if err := e.Device.Stop(ctx); err != nil {
		// The device may already have torn the clip down on its own.
		slog.Warn("device stop failed", slog.String("clip", clip.ID), slog.Any("err", err), slog.String("component", "player"))
	}

	if interrupted {
		// Device teardown already ran; an explicit stop goes straight back to
		// idle with no cooldown hold.
		e.setState(StateStopped, nil)
		e.setState(StateIdle, nil)
		return
	}

	telemetry.ClipsPlayed.Inc()
	if telemetry.PlaybackDuration != nil {
		telemetry.PlaybackDuration.Observe(time.Since(start).Seconds())
	}
	e.mu.Lock()
	e.last = clip
	e.mu.Unlock()
	if e.Record != nil {
		e.Record(ctx, clip)
	}

	e.setState(StateCooldown, nil)
	e.settle(ctx)
	e.setState(StateIdle, nil)
}

// settle waits out the cooldown interval so back-to-back clips don't fight
// the device over teardown.
func (e *Engine) settle(ctx context.Context) {
	if e.SettleInterval <= 0 {
		return
	}
	t := time.NewTimer(e.SettleInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (e *Engine) setState(s State, clip *twitchapi.ClipData) {
	e.mu.Lock()
	e.state = s
	e.current = clip
	e.mu.Unlock()
}

func (e *Engine) updateDepths() {
	telemetry.SetQueueDepths(len(e.queue), len(e.shoutouts))
}
