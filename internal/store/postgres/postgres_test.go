package postgres

import (
	"testing"
	"time"
)

func TestPgMicros_RoundTrip(t *testing.T) {
	cases := []time.Time{
		time.Unix(946684800, 0).UTC(), // the PostgreSQL epoch itself
		time.Unix(1700000000, 0).UTC(),
		time.Unix(0, 0).UTC(),
	}
	for _, want := range cases {
		got := fromPgMicros(pgMicros(want))
		if !got.Equal(want) {
			t.Errorf("round trip of %v produced %v", want, got)
		}
	}
}

func TestPgMicros_EpochIsZero(t *testing.T) {
	epoch := time.Unix(pgEpochOffset, 0).UTC()
	if pgMicros(epoch) != 0 {
		t.Errorf("pgMicros(postgres epoch) = %d, want 0", pgMicros(epoch))
	}
}
