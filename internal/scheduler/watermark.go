package scheduler

import "time"

// farPast is the initial modified-since bound. Early enough that the first
// export returns every record the vendor has ever written.
var farPast = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Watermark is the scheduling state of the sync loop: when the next cycle is
// due and the inclusive lower bound for the upstream export filter. It is a
// plain value threaded through the loop, never stored globally.
type Watermark struct {
	NextRunAt     time.Time
	ModifiedSince time.Time
}

// NewWatermark builds the starting watermark. A zero modifiedSince falls back
// to the far-past bound so the first cycle fetches everything.
func NewWatermark(nextRunAt, modifiedSince time.Time) Watermark {
	if modifiedSince.IsZero() {
		modifiedSince = farPast
	}
	return Watermark{
		NextRunAt:     nextRunAt.UTC(),
		ModifiedSince: dateOf(modifiedSince),
	}
}

// Due reports whether a cycle should run at the given instant.
func (w Watermark) Due(now time.Time) bool {
	return !now.Before(w.NextRunAt)
}

// Advance returns the watermark for the cycle after the one that just fired.
// ModifiedSince becomes the date of the fired run, so the bound trails the
// schedule by one interval and the next window re-covers the tail of this
// one. Upstream writes that landed mid-export are exported again; the
// downstream upserts are idempotent, so the overlap costs repeated work, not
// correctness.
func (w Watermark) Advance(interval time.Duration) Watermark {
	return Watermark{
		NextRunAt:     w.NextRunAt.Add(interval),
		ModifiedSince: dateOf(w.NextRunAt),
	}
}

// ModifiedSinceParam renders the lower bound the way the export API filters,
// date portion only.
func (w Watermark) ModifiedSinceParam() string {
	return w.ModifiedSince.Format(time.DateOnly)
}

func dateOf(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
