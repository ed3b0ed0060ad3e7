package remote

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"
)

// Policy bounds the retry loop of one remote step.
type Policy struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // wait before the first retry; doubles each time
}

// MaxDelay caps a single backoff wait.
const MaxDelay = 5 * time.Minute

// Delay returns the wait after the given failed attempt (1-based). The
// doubling stops at MaxDelay so large attempt numbers never overflow.
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := min(p.BaseDelay, MaxDelay)
	for i := 1; i < attempt && d < MaxDelay; i++ {
		d *= 2
	}
	return min(d, MaxDelay)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds, fails with a terminal error, or the policy
// runs out of attempts. It returns the number of attempts made and the last
// error.
func Do(ctx context.Context, p Policy, sleep SleepFunc, op func(ctx context.Context, attempt int) error) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}
	total := p.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= total; attempt++ {
		err = op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if !Retryable(err) || attempt == total || ctx.Err() != nil {
			return attempt, err
		}
		if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
			return attempt, err
		}
	}
	return total, err
}

// Retryable reports whether a failed attempt may succeed when repeated:
// server errors, timeouts and transport failures. 4xx responses, invalid
// responses and cancellation are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	if errors.Is(err, errInvalidResponse) {
		return false
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
