package scheduler

import (
	"testing"

	"marketcollector/internal/fetcher"
)

func TestDue(t *testing.T) {
	cases := []struct {
		name     string
		now      int64
		nextRun  int64
		interval int64
		force    bool
		want     bool
	}{
		{"at next run", 1000, 1000, 600, false, true},
		{"past next run", 1500, 1000, 600, false, true},
		{"before next run", 900, 1000, 600, false, false},
		{"forced", 900, 1000, 600, true, true},
		{"permanent backoff holds", 1000, 1000 + PermanentBackoff, 600, false, false},
		{"clock jumped backwards", 1000, 1000 + PermanentBackoff + 1, 600, false, true},
		{"long interval still honoured", 1000, 1000 + 2*PermanentBackoff, 3 * PermanentBackoff, false, false},
	}

	for _, tc := range cases {
		if got := Due(tc.now, tc.nextRun, tc.interval, tc.force); got != tc.want {
			t.Errorf("%s: Due(%d, %d, %d, %v) = %v, want %v", tc.name, tc.now, tc.nextRun, tc.interval, tc.force, got, tc.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	if got := Backoff(fetcher.Transient); got != 60 {
		t.Errorf("transient backoff = %d, want 60", got)
	}
	if got := Backoff(fetcher.Permanent); got != 86400 {
		t.Errorf("permanent backoff = %d, want 86400", got)
	}
}
