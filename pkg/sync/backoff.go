package sync

import (
	"math/rand"
	"time"
)

const (
	DefaultMaxRetries     = 5
	DefaultBaseRetryDelay = 1 * time.Second
	DefaultMaxRetryDelay  = 2 * time.Minute
)

// backoffDelay returns the capped exponential delay before the given
// retry attempt, jittered to half its value so orchestrators in
// multiple sessions do not retry in lockstep.
func backoffDelay(retryCount int, base time.Duration, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay/2 + jitter
}
