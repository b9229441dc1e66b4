package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockoutUnavailable indicates the lockout backend is unreachable.
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// LockoutConfig tunes the progressive-lockout state machine.
type LockoutConfig struct {
	// Threshold is the number of consecutive failures that trips the lock.
	Threshold int
	// Window is both the failure-counting window and the lock duration.
	// When it elapses the account returns to the open state with a zero
	// counter.
	Window time.Duration
}

// recordFailureScript increments the failure counter and, when the
// threshold is reached, atomically converts the counter into a lock. A
// single INCR-based script means two concurrent wrong-password attempts can
// never read the same stale counter and under-count.
const recordFailureScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if count >= tonumber(ARGV[2]) then
  redis.call("SET", KEYS[2], "1", "PX", ARGV[1])
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// Lockout tracks consecutive failed login attempts per account and locks
// the account once the threshold is reached. State lives in Redis, keyed by
// a caller-supplied account key (the case-folded email), so the counter is
// shared across processes and atomic per account.
//
// States: open (attempts < threshold) and locked (lock key present). The
// lock key's TTL is the authoritative unlock time; its natural expiry is the
// transition back to open with the counter already cleared.
type Lockout struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockout returns a Lockout tracker.
func NewLockout(client redis.UniversalClient, cfg LockoutConfig) *Lockout {
	return &Lockout{redis: client, config: cfg}
}

func (l *Lockout) countKey(account string) string {
	return "alo:n:" + account
}

func (l *Lockout) lockKey(account string) string {
	return "alo:l:" + account
}

// Status reports whether the account is currently locked and, if so, when
// the lock expires. It performs a single TTL read so callers can fail fast
// before doing any password work.
func (l *Lockout) Status(ctx context.Context, account string) (bool, time.Time, error) {
	ttl, err := l.redis.PTTL(ctx, l.lockKey(account)).Result()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if ttl <= 0 {
		// -2 missing key, -1 no expiry; neither counts as locked.
		return false, time.Time{}, nil
	}
	return true, time.Now().Add(ttl), nil
}

// RecordFailure registers one failed attempt. It returns true, with the
// unlock time, when this attempt tripped the lock.
func (l *Lockout) RecordFailure(ctx context.Context, account string) (bool, time.Time, error) {
	locked, err := recordFailureLua.Run(ctx, l.redis,
		[]string{l.countKey(account), l.lockKey(account)},
		l.config.Window.Milliseconds(),
		l.config.Threshold,
	).Int64()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if locked == 1 {
		return true, time.Now().Add(l.config.Window), nil
	}
	return false, time.Time{}, nil
}

// Reset clears the failure counter and any lock. Called only after a fully
// successful login or a password reset; a merely correct password during an
// open failure window does not reach here.
func (l *Lockout) Reset(ctx context.Context, account string) error {
	if err := l.redis.Del(ctx, l.countKey(account), l.lockKey(account)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// FailureCount returns the current consecutive-failure count.
func (l *Lockout) FailureCount(ctx context.Context, account string) (int, error) {
	count, err := l.redis.Get(ctx, l.countKey(account)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
