package commands

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/events"
)

// Decision is the outcome of one approval request.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionApproved
	DecisionDenied
	DecisionTimedOut
)

func (d Decision) String() string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionDenied:
		return "denied"
	case DecisionTimedOut:
		return "timed out"
	default:
		return "pending"
	}
}

// Gate serializes moderator approval for search-based playback requests.
// While a request is awaiting approval, moderator chat lines are scanned
// against the configured word lists; outside that window chat has no effect.
type Gate struct {
	approveWords []string
	denyWords    []string

	mu       sync.Mutex
	awaiting bool
	decision Decision
}

func NewGate(approveWords, denyWords []string) *Gate {
	return &Gate{approveWords: approveWords, denyWords: denyWords}
}

// Awaiting reports whether a request is currently waiting on a decision.
func (g *Gate) Awaiting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.awaiting
}

// Record registers an explicit decision (e.g., from the approval endpoint).
// Ignored when nothing is awaiting, or when a decision already landed.
func (g *Gate) Record(approved bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.awaiting || g.decision != DecisionPending {
		return
	}
	if approved {
		g.decision = DecisionApproved
	} else {
		g.decision = DecisionDenied
	}
}

// Observe scans one chat message for approval or denial words. Only moderator
// messages count, and only while a request is awaiting. A message containing
// both a denial and an affirmation word denies.
func (g *Gate) Observe(msg events.ChatMessage) {
	if !msg.IsModerator {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.awaiting || g.decision != DecisionPending {
		return
	}
	words := strings.Fields(strings.ToLower(msg.Text))
	matched := DecisionPending
	for _, w := range words {
		if containsWord(g.denyWords, w) {
			matched = DecisionDenied
			break // denial wins outright
		}
		if matched == DecisionPending && containsWord(g.approveWords, w) {
			matched = DecisionApproved
		}
	}
	if matched != DecisionPending {
		g.decision = matched
	}
}

// Open begins an approval window ahead of the wait, so a decision landing
// between the candidate announcement and the poll loop is not lost. Returns
// false when another request already holds the window.
func (g *Gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.awaiting {
		return false
	}
	g.awaiting = true
	g.decision = DecisionPending
	return true
}

// Await polls for a decision until timeout or ctx cancellation, opening the
// window first if Open was not called. The window is closed exactly once on
// every return path.
func (g *Gate) Await(ctx context.Context, poll, timeout time.Duration) Decision {
	g.mu.Lock()
	if !g.awaiting {
		g.awaiting = true
		g.decision = DecisionPending
	}
	g.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			g.awaiting = false
			g.mu.Unlock()
		})
	}
	defer release()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return DecisionTimedOut
		case <-deadline.C:
			return DecisionTimedOut
		case <-ticker.C:
			g.mu.Lock()
			d := g.decision
			g.mu.Unlock()
			if d != DecisionPending {
				return d
			}
		}
	}
}

func containsWord(list []string, w string) bool {
	for _, s := range list {
		if s == w {
			return true
		}
	}
	return false
}
