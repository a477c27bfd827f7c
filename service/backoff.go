package service

import "time"

const (
	backoffBase = 100 * time.Millisecond
	backoffMax  = 5 * time.Second
)

// backoffDelay returns the exponential backoff for a given attempt:
// backoffBase * 2^attempt, capped at backoffMax.
func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		return backoffBase
	}
	if attempt > 30 {
		return backoffMax
	}
	d := backoffBase * time.Duration(1<<attempt)
	if d > backoffMax {
		return backoffMax
	}
	return d
}
