package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/clip-tender/backoff"
	"github.com/onnwee/clip-tender/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	m.Run()
}

// scriptedSource emits a fixed batch of events per connection and then fails,
// forcing the coordinator through its reconnect loop.
type scriptedSource struct {
	name    string
	batches [][]TwitchEvent

	mu   sync.Mutex
	runs int
	done chan struct{}
}

func (s *scriptedSource) Name() string { return s.name }

func (s *scriptedSource) Run(ctx context.Context, emit func(TwitchEvent)) error {
	s.mu.Lock()
	run := s.runs
	s.runs++
	s.mu.Unlock()
	if run >= len(s.batches) {
		if s.done != nil {
			select {
			case s.done <- struct{}{}:
			default:
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}
	for _, ev := range s.batches[run] {
		emit(ev)
	}
	return errors.New("connection dropped")
}

func chatEvent(id, text string) ChatMessageEvent {
	return ChatMessageEvent{Message: ChatMessage{ID: id, Username: "viewer", Text: text}}
}

func collectingHandler() (Handler, func() []TwitchEvent) {
	var mu sync.Mutex
	var got []TwitchEvent
	h := func(ctx context.Context, ev TwitchEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}
	return h, func() []TwitchEvent {
		mu.Lock()
		defer mu.Unlock()
		out := make([]TwitchEvent, len(got))
		copy(out, got)
		return out
	}
}

func TestCoordinatorDeduplicatesAcrossSources(t *testing.T) {
	handler, got := collectingHandler()
	done := make(chan struct{}, 1)
	src := &scriptedSource{
		name: "a",
		batches: [][]TwitchEvent{
			{chatEvent("m1", "hello"), chatEvent("m2", "again"), chatEvent("m1", "hello")},
		},
		done: done,
	}
	c := &Coordinator{
		Sources:     []Source{src},
		Handler:     handler,
		Policy:      backoff.Policy{Base: time.Millisecond, Max: 2 * time.Millisecond},
		DedupWindow: time.Minute,
	}
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("source never reached steady state")
	}
	cancel()

	evs := got()
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2 (duplicate m1 dropped): %+v", len(evs), evs)
	}
	if evs[0].EventID() != "m1" || evs[1].EventID() != "m2" {
		t.Errorf("order not preserved: %q, %q", evs[0].EventID(), evs[1].EventID())
	}
}

func TestCoordinatorEmptyEventIDAlwaysDelivered(t *testing.T) {
	handler, got := collectingHandler()
	done := make(chan struct{}, 1)
	src := &scriptedSource{
		name: "a",
		batches: [][]TwitchEvent{
			{chatEvent("", "x"), chatEvent("", "y")},
		},
		done: done,
	}
	c := &Coordinator{
		Sources: []Source{src},
		Handler: handler,
		Policy:  backoff.Policy{Base: time.Millisecond, Max: 2 * time.Millisecond},
	}
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("source never reached steady state")
	}
	cancel()

	if n := len(got()); n != 2 {
		t.Errorf("got %d events, want 2 (no dedup without ids)", n)
	}
}

func TestCoordinatorSurvivesSourceFailures(t *testing.T) {
	handler, got := collectingHandler()
	done := make(chan struct{}, 1)
	// Two connections, each emitting one event, then steady state.
	src := &scriptedSource{
		name: "flaky",
		batches: [][]TwitchEvent{
			{chatEvent("c1", "first connection")},
			{chatEvent("c2", "second connection")},
		},
		done: done,
	}
	c := &Coordinator{
		Sources: []Source{src},
		Handler: handler,
		Policy:  backoff.Policy{Base: time.Millisecond, Max: 2 * time.Millisecond},
	}
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not reconnect the failed source")
	}
	cancel()

	evs := got()
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2 across reconnects", len(evs))
	}
}

func TestIsDuplicateWindowExpiry(t *testing.T) {
	c := &Coordinator{DedupWindow: 10 * time.Millisecond}
	if c.isDuplicate("x") {
		t.Fatal("first sighting must not be a duplicate")
	}
	if !c.isDuplicate("x") {
		t.Fatal("second sighting inside window must be a duplicate")
	}
	time.Sleep(15 * time.Millisecond)
	if c.isDuplicate("x") {
		t.Error("sighting after window expiry must not be a duplicate")
	}
}
