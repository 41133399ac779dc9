// Package backoff implements the bounded exponential delay shared by the
// serializable-transaction retry wrapper and the job claim engine.
package backoff

import "time"

// Delay returns base << (attempt-1) capped at cap. attempt is 1-based; an
// attempt below 1 yields base. The sequence is non-decreasing up to the cap.
func Delay(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
