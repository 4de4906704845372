package constr

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParse_KeyOnly(t *testing.T) {
	id := uuid.New()
	c, err := Parse(id.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.HasPassword {
		t.Error("HasPassword = true, want false")
	}
	if c.APIKey != id {
		t.Errorf("APIKey = %v, want %v", c.APIKey, id)
	}
}

func TestParse_WithPassword(t *testing.T) {
	id := uuid.New()
	wire := id.String() + "¤hunter2"
	c, err := Parse(wire)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !c.HasPassword || c.Password != "hunter2" {
		t.Errorf("got password %q (has=%v), want %q", c.Password, c.HasPassword, "hunter2")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	cases := []string{
		uuid.New().String(),
		uuid.New().String() + "¤",
		uuid.New().String() + "¤sEcr3t",
	}
	for _, s := range cases {
		c, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if !strings.EqualFold(c.String(), s) {
			t.Errorf("round-trip: Parse(%q).String() = %q", s, c.String())
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		"",
		"not-a-uuid",
		uuid.New().String()[:35],
		uuid.New().String() + "X",          // garbage instead of separator
		uuid.New().String() + "\xC2\x00zz", // correct first separator byte, wrong second
	}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q): want error, got nil", s)
		}
	}
}

func TestParse_RejectsNonV4(t *testing.T) {
	// A NIL UUID is version 0, not 4.
	s := "00000000-0000-0000-0000-000000000000"
	if _, err := Parse(s); err == nil {
		t.Errorf("Parse(%q): want error for non-v4 UUID", s)
	}
}
