// Package retry holds the backoff arithmetic used when a vault stream drops.
//
// A Policy computes 2^(n+1) units plus a fixed jitter for retry n. Defaults
// reproduce the historical behaviour: millisecond units, 100ms jitter, no cap
// on the delay and no cap on the number of retries. Deployments that want to
// bound resource use set MaxDelay and MaxRetries.
//
//	p := retry.DefaultPolicy()
//	p.MaxRetries = 20
//	if p.Allow(attempt) {
//	    time.AfterFunc(p.Delay(attempt-1), reconnect)
//	}
//
// Do is a plain retry loop for one-shot operations:
//
//	err := retry.Do(ctx, retry.Policy{Unit: 50 * time.Millisecond}, 5, func() error {
//	    return connect()
//	})
package retry
