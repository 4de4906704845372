package turnstile

import (
	"testing"
	"time"
)

// newTestTurnstile pins the turnstile's clock to a settable instant: every
// check sees the same time until a test moves it through the returned
// pointer, so tests control the reset boundaries explicitly via jumps.
func newTestTurnstile(limits Limits) (*Turnstile, *time.Time) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := t0
	ts := New(limits, nil)
	ts.now = func() time.Time { return now }
	return ts, &now
}

func TestTurnstile_AllowsUnderLimit(t *testing.T) {
	ts, _ := newTestTurnstile(Limits{PerMinute: 3, PerHour: 90})
	for i := 0; i < 2; i++ {
		d := ts.Check("1.2.3.4:1000")
		if !d.Allowed {
			t.Fatalf("request %d: blocked, want allowed", i)
		}
	}
}

func TestTurnstile_BlocksAtMinuteLimit(t *testing.T) {
	ts, _ := newTestTurnstile(Limits{PerMinute: 3, PerHour: 90})
	for i := 0; i < 3; i++ {
		if d := ts.Check("1.2.3.4:1000"); !d.Allowed {
			t.Fatalf("request %d: blocked, want allowed", i)
		}
	}
	d := ts.Check("1.2.3.4:1000")
	if d.Allowed {
		t.Fatal("4th request within a minute: allowed, want blocked")
	}
	if d.NextRequestAt.IsZero() {
		t.Error("NextRequestAt not set on a blocked decision")
	}
}

func TestTurnstile_ResetsAfterAMinute(t *testing.T) {
	ts, now := newTestTurnstile(Limits{PerMinute: 2, PerHour: 90})
	for i := 0; i < 2; i++ {
		ts.Check("1.2.3.4:1000")
	}
	if d := ts.Check("1.2.3.4:1000"); d.Allowed {
		t.Fatal("3rd request before reset: allowed, want blocked")
	}
	*now = now.Add(61 * time.Second)
	if d := ts.Check("1.2.3.4:1000"); !d.Allowed {
		t.Fatal("request after a minute elapsed: blocked, want allowed")
	}
}

func TestTurnstile_PerIPIsolation(t *testing.T) {
	ts, _ := newTestTurnstile(Limits{PerMinute: 1, PerHour: 90})
	if d := ts.Check("1.1.1.1:1"); !d.Allowed {
		t.Fatal("first IP's first request blocked")
	}
	if d := ts.Check("2.2.2.2:1"); !d.Allowed {
		t.Fatal("second IP's first request blocked by first IP's count")
	}
}

func TestTurnstile_LastRequestAtMonotone(t *testing.T) {
	ts, now := newTestTurnstile(Limits{PerMinute: 1000, PerHour: 1000})
	var prev time.Time
	for i := 0; i < 5; i++ {
		*now = now.Add(time.Second)
		ts.Check("1.2.3.4:1")
		ts.mu.Lock()
		cur := ts.entries[hostOnly("1.2.3.4:1")].lastRequestAt
		ts.mu.Unlock()
		if cur.Before(prev) {
			t.Fatalf("last_request_at went backwards: %v before %v", cur, prev)
		}
		prev = cur
	}
}

func TestHostOnly_StripsPort(t *testing.T) {
	if got := hostOnly("10.0.0.1:4113"); got != "10.0.0.1" {
		t.Errorf("hostOnly = %q, want %q", got, "10.0.0.1")
	}
	if got := hostOnly("10.0.0.1"); got != "10.0.0.1" {
		t.Errorf("hostOnly of bare host = %q, want %q", got, "10.0.0.1")
	}
}
