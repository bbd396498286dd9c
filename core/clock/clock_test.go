package clock

import (
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	start := time.Unix(1_700_000_000, 0).UTC()
	c := NewManual(start)
	if !c.Now().Equal(start) {
		t.Fatalf("unexpected start %s", c.Now())
	}
	got := c.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !got.Equal(want) || !c.Now().Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
