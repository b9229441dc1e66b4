package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when the token ID does not exist, has
	// expired, or was already consumed.
	ErrNotFound = errors.New("one-time token not found")

	// ErrSecretMismatch is returned when the ID exists but the presented
	// secret digest is wrong. Callers should surface it identically to
	// ErrNotFound.
	ErrSecretMismatch = errors.New("one-time token secret mismatch")

	// ErrUnavailable indicates the token backend is unreachable.
	ErrUnavailable = errors.New("token backend unavailable")
)

const (
	consumeStatusNotFound int64 = 0
	consumeStatusMismatch int64 = 1
	consumeStatusConsumed int64 = 2
)

// consumeScript validates and deletes in one step, so concurrent
// double-submission of the same token succeeds at most once. Only the
// secret's SHA-256 is stored; a mismatch leaves the token in place for the
// legitimate holder.
const consumeScript = `
local v = redis.call("GET", KEYS[1])
if not v then
  return {0, ""}
end
local sep = string.find(v, "|", 1, true)
if not sep then
  redis.call("DEL", KEYS[1])
  return {0, ""}
end
if string.sub(v, 1, sep - 1) ~= ARGV[1] then
  return {1, ""}
end
redis.call("DEL", KEYS[1])
return {2, string.sub(v, sep + 1)}
`

var consumeLua = redis.NewScript(consumeScript)

// OneTime persists single-use, expiring secrets: password-reset and
// email-verification tokens. Each record binds a token ID to a user and the
// SHA-256 of the token secret; expiry is enforced by Redis TTL so no sweep
// is required for the tokens themselves.
type OneTime struct {
	redis  redis.UniversalClient
	prefix string
}

// NewOneTime returns a store namespaced by prefix (e.g. "pwreset").
func NewOneTime(client redis.UniversalClient, prefix string) *OneTime {
	return &OneTime{redis: client, prefix: prefix}
}

func (s *OneTime) key(id string) string {
	return s.prefix + ":" + id
}

// Save records the token. A duplicate ID overwrites, which cannot happen in
// practice with random 128-bit IDs.
func (s *OneTime) Save(ctx context.Context, id, userID, secretSHA string, ttl time.Duration) error {
	if id == "" || userID == "" || secretSHA == "" {
		return errors.New("one-time token requires id, user, and secret digest")
	}
	if ttl <= 0 {
		return errors.New("one-time token ttl must be positive")
	}
	err := s.redis.Set(ctx, s.key(id), secretSHA+"|"+userID, ttl).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Consume atomically validates the secret digest and deletes the record,
// returning the bound user ID. A second call with the same token fails with
// ErrNotFound.
func (s *OneTime) Consume(ctx context.Context, id, secretSHA string) (string, error) {
	res, err := consumeLua.Run(ctx, s.redis, []string{s.key(id)}, secretSHA).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return "", fmt.Errorf("%w: unexpected script reply", ErrUnavailable)
	}
	status, _ := parts[0].(int64)
	userID, _ := parts[1].(string)

	switch status {
	case consumeStatusConsumed:
		return userID, nil
	case consumeStatusMismatch:
		return "", ErrSecretMismatch
	default:
		return "", ErrNotFound
	}
}

// Delete discards a pending token, e.g. when a newer one supersedes it.
func (s *OneTime) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
