package backoff

import (
	"testing"
	"time"
)

func TestDelayNoJitter(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Max: 300 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{5, 64 * time.Second},
		{10, 300 * time.Second},
		{30, 300 * time.Second},
	}
	for _, c := range cases {
		if got := p.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDelayNeverExceedsMax(t *testing.T) {
	p := Policy{Base: time.Second, Max: 30 * time.Second, Jitter: 0}
	for n := 0; n < 64; n++ {
		if got := p.Delay(n); got > p.Max {
			t.Fatalf("Delay(%d) = %v exceeds max %v", n, got, p.Max)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	p := Policy{Base: 10 * time.Second, Max: 100 * time.Second, Jitter: 0.5}
	lo := 5 * time.Second
	hi := 15 * time.Second
	for i := 0; i < 200; i++ {
		d := p.Delay(0)
		if d < lo || d > hi {
			t.Fatalf("Delay(0) = %v outside [%v, %v]", d, lo, hi)
		}
	}
}

func TestDelayZeroBase(t *testing.T) {
	p := Policy{}
	if got := p.Delay(3); got != 0 {
		t.Errorf("Delay with zero base = %v, want 0", got)
	}
}
