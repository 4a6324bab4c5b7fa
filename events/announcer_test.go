package events

import (
	"context"
	"errors"
	"testing"
)

type recordingSayer struct {
	lines []string
	err   error
}

func (r *recordingSayer) Say(text string) error {
	r.lines = append(r.lines, text)
	return r.err
}

func TestAnnouncerSends(t *testing.T) {
	chat := &recordingSayer{}
	a := NewAnnouncer(chat)
	a.Announce(context.Background(), "hello chat")
	if len(chat.lines) != 1 || chat.lines[0] != "hello chat" {
		t.Errorf("unexpected lines: %v", chat.lines)
	}
}

func TestAnnouncerSwallowsFailures(t *testing.T) {
	chat := &recordingSayer{err: errors.New("disconnected")}
	a := NewAnnouncer(chat)
	// Must not panic or propagate; a missed announcement is not a command failure.
	a.Announce(context.Background(), "anyone there?")
}

func TestAnnouncerIgnoresEmpty(t *testing.T) {
	chat := &recordingSayer{}
	a := NewAnnouncer(chat)
	a.Announce(context.Background(), "")
	if len(chat.lines) != 0 {
		t.Errorf("empty text must not be sent: %v", chat.lines)
	}
}
