package commands

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/clip-tender/events"
)

func testGate() *Gate {
	return NewGate([]string{"yes", "approve", "ok", "play"}, []string{"no", "deny", "skip", "reject"})
}

func modMsg(text string) events.ChatMessage {
	return events.ChatMessage{Username: "mod", Text: text, IsModerator: true}
}

func awaitAsync(g *Gate) <-chan Decision {
	ch := make(chan Decision, 1)
	go func() {
		ch <- g.Await(context.Background(), time.Millisecond, 500*time.Millisecond)
	}()
	// Give the waiter a moment to open the window.
	for i := 0; i < 100 && !g.Awaiting(); i++ {
		time.Sleep(time.Millisecond)
	}
	return ch
}

func TestGateApproval(t *testing.T) {
	g := testGate()
	ch := awaitAsync(g)
	g.Observe(modMsg("yes"))
	if d := <-ch; d != DecisionApproved {
		t.Errorf("got %v, want approved", d)
	}
	if g.Awaiting() {
		t.Error("window must be closed after Await returns")
	}
}

func TestGateDenial(t *testing.T) {
	g := testGate()
	ch := awaitAsync(g)
	g.Observe(modMsg("skip that one"))
	if d := <-ch; d != DecisionDenied {
		t.Errorf("got %v, want denied", d)
	}
}

func TestGateDenialWinsOverApproval(t *testing.T) {
	g := testGate()
	ch := awaitAsync(g)
	// A message containing both must deny.
	g.Observe(modMsg("yes but actually no"))
	if d := <-ch; d != DecisionDenied {
		t.Errorf("got %v, want denied (denial wins on conflict)", d)
	}
}

func TestGateIgnoresNonModerators(t *testing.T) {
	g := testGate()
	ch := awaitAsync(g)
	g.Observe(events.ChatMessage{Username: "viewer", Text: "yes yes yes"})
	select {
	case d := <-ch:
		if d != DecisionTimedOut {
			t.Errorf("non-moderator affected the gate: %v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Await never returned")
	}
}

func TestGateCaseInsensitiveWords(t *testing.T) {
	g := testGate()
	ch := awaitAsync(g)
	g.Observe(modMsg("APPROVE"))
	if d := <-ch; d != DecisionApproved {
		t.Errorf("got %v, want approved (case-insensitive scan)", d)
	}
}

func TestGateTimeout(t *testing.T) {
	g := testGate()
	d := g.Await(context.Background(), time.Millisecond, 20*time.Millisecond)
	if d != DecisionTimedOut {
		t.Errorf("got %v, want timeout", d)
	}
	if g.Awaiting() {
		t.Error("window must be closed after timeout")
	}
}

func TestGateObserveOutsideWindowNoEffect(t *testing.T) {
	g := testGate()
	g.Observe(modMsg("yes"))
	// The stale "yes" must not leak into the next request.
	d := g.Await(context.Background(), time.Millisecond, 20*time.Millisecond)
	if d != DecisionTimedOut {
		t.Errorf("got %v, want timeout (decision outside window must not count)", d)
	}
}

func TestGateOpenExclusive(t *testing.T) {
	g := testGate()
	if !g.Open() {
		t.Fatal("first Open must succeed")
	}
	if g.Open() {
		t.Error("second Open must fail while the window is held")
	}
}

func TestGateDecisionBetweenOpenAndAwait(t *testing.T) {
	g := testGate()
	if !g.Open() {
		t.Fatal("Open failed")
	}
	// The prompt just went out; the decision lands before the wait starts.
	g.Observe(modMsg("yes"))
	if d := g.Await(context.Background(), time.Millisecond, 100*time.Millisecond); d != DecisionApproved {
		t.Errorf("got %v, want approved (decision before Await must not be lost)", d)
	}
	if g.Awaiting() {
		t.Error("window must be closed after Await returns")
	}
}

func TestGateExplicitRecord(t *testing.T) {
	g := testGate()
	ch := awaitAsync(g)
	g.Record(true)
	if d := <-ch; d != DecisionApproved {
		t.Errorf("got %v, want approved via explicit decision", d)
	}

	// Record with nothing awaiting is a no-op.
	g.Record(false)
	ch = awaitAsync(g)
	g.Record(false)
	if d := <-ch; d != DecisionDenied {
		t.Errorf("got %v, want denied", d)
	}
}

func TestGateContextCancellation(t *testing.T) {
	g := testGate()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Decision, 1)
	go func() { ch <- g.Await(ctx, time.Millisecond, time.Minute) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case d := <-ch:
		if d != DecisionTimedOut {
			t.Errorf("got %v, want timeout on cancellation", d)
		}
	case <-time.After(time.Second):
		t.Fatal("Await did not return on cancellation")
	}
	if g.Awaiting() {
		t.Error("window must be closed after cancellation")
	}
}
