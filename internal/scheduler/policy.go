package scheduler

import "marketcollector/internal/fetcher"

const (
	// TransientBackoff defers a section 60 s after a transient failure.
	TransientBackoff int64 = 60
	// PermanentBackoff defers a section 24 h after a permanent failure.
	PermanentBackoff int64 = 86400
)

// Due reports whether a section should run now. Besides force and the
// next-run comparison, a next-run further away than any legitimate deferral
// counts as due, which recovers from system clock jumps. The skew threshold
// floors at PermanentBackoff: a permanently failed section is parked a full
// day ahead regardless of its own interval, and comparing the skew against
// the interval alone would re-trigger such a section immediately instead of
// honouring the back-off.
func Due(now, nextRun, interval int64, force bool) bool {
	if force || now >= nextRun {
		return true
	}
	limit := interval
	if limit < PermanentBackoff {
		limit = PermanentBackoff
	}
	skew := nextRun - now
	if skew < 0 {
		skew = -skew
	}
	return skew > limit
}

// Backoff returns the deferral in seconds for a failed section run.
func Backoff(kind fetcher.FailureKind) int64 {
	if kind == fetcher.Permanent {
		return PermanentBackoff
	}
	return TransientBackoff
}
