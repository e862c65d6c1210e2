package clock

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	c := &RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestFakeClock(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewFakeClock(base)

	if !c.Now().Equal(base) {
		t.Errorf("Now() = %v, want %v", c.Now(), base)
	}

	c.Advance(time.Hour)
	if !c.Now().Equal(base.Add(time.Hour)) {
		t.Errorf("Now() after Advance = %v", c.Now())
	}

	c.Set(base)
	if !c.Now().Equal(base) {
		t.Errorf("Now() after Set = %v", c.Now())
	}
}

func TestFakeClock_AfterFiresImmediately(t *testing.T) {
	c := NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	select {
	case got := <-c.After(time.Hour):
		want := c.Now().Add(time.Hour)
		if !got.Equal(want) {
			t.Errorf("After delivered %v, want %v", got, want)
		}
	default:
		t.Error("After channel did not fire immediately")
	}
}
