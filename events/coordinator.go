package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/backoff"
	"github.com/onnwee/clip-tender/telemetry"
)

// Source is one long-lived event feed. Run connects and emits raw-normalized
// events until the connection drops (return the error) or ctx is canceled.
type Source interface {
	Name() string
	Run(ctx context.Context, emit func(TwitchEvent)) error
}

// Handler consumes the canonical event stream.
type Handler func(ctx context.Context, ev TwitchEvent)

// Coordinator runs every source in its own reconnect loop and funnels their
// events through normalization and dedup into a single handler. A source
// failing never stops the others; only ctx cancellation stops the coordinator.
type Coordinator struct {
	Sources []Source
	Handler Handler
	Policy  backoff.Policy
	// DedupWindow bounds how long delivered event ids are remembered. This is
	// an observable-window guarantee, not a global exactly-once one; downstream
	// commands tolerate at-least-once delivery.
	DedupWindow time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

func (c *Coordinator) window() time.Duration {
	if c.DedupWindow > 0 {
		return c.DedupWindow
	}
	return 2 * time.Minute
}

func (c *Coordinator) policy() backoff.Policy {
	if c.Policy.Base > 0 {
		return c.Policy
	}
	return backoff.Default
}

// Run starts all sources and blocks until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, src := range c.Sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			c.runSource(ctx, s)
		}(src)
	}
	wg.Wait()
}

// runSource drives one source's connect/retry loop indefinitely.
func (c *Coordinator) runSource(ctx context.Context, s Source) {
	policy := c.policy()
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		err := s.Run(ctx, func(ev TwitchEvent) { c.deliver(ctx, s.Name(), ev) })
		if ctx.Err() != nil {
			return
		}
		// A connection that held for a while earns a fresh backoff schedule.
		if time.Since(started) > time.Minute {
			attempt = 0
		}
		delay := policy.Delay(attempt)
		attempt++
		slog.Warn("event source disconnected",
			slog.String("source", s.Name()),
			slog.Any("err", err),
			slog.Duration("retry_in", delay),
			slog.String("component", "events"))
		telemetry.SourceReconnects.Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// deliver applies dedup and hands the event to the single consumer. Events
// from one source arrive here in source order on that source's goroutine, so
// per-source ordering is preserved end to end.
func (c *Coordinator) deliver(ctx context.Context, source string, ev TwitchEvent) {
	telemetry.EventsReceived.Inc()
	if id := ev.EventID(); id != "" && c.isDuplicate(id) {
		telemetry.EventsDeduplicated.Inc()
		slog.Debug("duplicate event dropped", slog.String("source", source), slog.String("event_id", id), slog.String("component", "events"))
		return
	}
	if c.Handler != nil {
		c.Handler(ctx, ev)
	}
}

func (c *Coordinator) isDuplicate(id string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = make(map[string]time.Time)
	}
	if at, ok := c.seen[id]; ok && now.Sub(at) < c.window() {
		return true
	}
	c.seen[id] = now
	// Opportunistic prune; the map stays bounded by chat volume inside the window.
	if len(c.seen)%256 == 0 {
		cutoff := now.Add(-c.window())
		for k, at := range c.seen {
			if at.Before(cutoff) {
				delete(c.seen, k)
			}
		}
	}
	return false
}
