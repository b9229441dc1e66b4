package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when the session does not exist or has expired.
	ErrNotFound = errors.New("session not found")

	// ErrRefreshMismatch is returned by Rotate when the presented refresh
	// identifier is not the session's current one. The caller should treat
	// this as replay of a consumed refresh token.
	ErrRefreshMismatch = errors.New("refresh identifier mismatch")

	// ErrUnavailable indicates the session backend is unreachable.
	ErrUnavailable = errors.New("session backend unavailable")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 1
	rotateStatusRotated  int64 = 2
)

// rotateScript swaps the session's refresh identifier hash if and only if
// the stored hash equals the presented one. Running it as a single script
// guarantees that of N concurrent refresh calls carrying the same stale
// token, exactly one rotates and the rest observe a mismatch.
const rotateScript = `
local sha = redis.call("HGET", KEYS[1], "refresh_sha")
if not sha then
  return 0
end
if sha ~= ARGV[1] then
  return 1
end
redis.call("HSET", KEYS[1], "refresh_sha", ARGV[2], "last_used_at", ARGV[3], "expires_at", ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 2
`

// deleteScript removes a session and its index entry. Deleting an absent
// session is not an error; the script stays idempotent so logout can be
// retried freely.
const deleteScript = `
redis.call("SREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`

var (
	rotateLua = redis.NewScript(rotateScript)
	deleteLua = redis.NewScript(deleteScript)
)

// Session is one refresh-token-backed login, one row per device/login.
// RefreshSHA holds the SHA-256 (hex) of the current refresh token's ID, so
// possession of the registry never yields a usable token.
type Session struct {
	ID         string
	UserID     string
	DeviceID   string
	UserAgent  string
	IP         string
	RefreshSHA string
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
}

// Registry tracks active sessions in Redis: one hash per session plus a
// per-user set of session IDs for enumeration. All mutations are atomic at
// the store level, so no in-process locking is needed.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRegistry returns a Registry using prefix to namespace its keys.
func NewRegistry(client redis.UniversalClient, prefix string) *Registry {
	if prefix == "" {
		prefix = "ak"
	}
	return &Registry{redis: client, prefix: prefix}
}

func (r *Registry) key(sessionID string) string {
	return r.prefix + ":sess:" + sessionID
}

func (r *Registry) indexKey(userID string) string {
	return r.prefix + ":idx:" + userID
}

// Save writes the session and registers it in the owner's index. The
// session key expires after ttl; the index is extended to at least ttl and
// pruned lazily on reads.
func (r *Registry) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess == nil || sess.ID == "" || sess.UserID == "" {
		return errors.New("session requires an ID and a user ID")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}

	pipe := r.redis.TxPipeline()
	pipe.HSet(ctx, r.key(sess.ID), map[string]interface{}{
		"user_id":      sess.UserID,
		"device_id":    sess.DeviceID,
		"user_agent":   sess.UserAgent,
		"ip":           sess.IP,
		"refresh_sha":  sess.RefreshSHA,
		"created_at":   sess.CreatedAt.Unix(),
		"last_used_at": sess.LastUsedAt.Unix(),
		"expires_at":   sess.ExpiresAt.Unix(),
	})
	pipe.PExpire(ctx, r.key(sess.ID), ttl)
	pipe.SAdd(ctx, r.indexKey(sess.UserID), sess.ID)
	pipe.PExpire(ctx, r.indexKey(sess.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get loads a session by ID. Missing or expired sessions return ErrNotFound.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := r.redis.HGetAll(ctx, r.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeSession(sessionID, fields), nil
}

// Rotate atomically replaces the session's refresh identifier hash,
// provided oldSHA is still current, and extends the session by ttl.
// Returns ErrNotFound if the session is gone and ErrRefreshMismatch if a
// concurrent rotation already consumed oldSHA.
func (r *Registry) Rotate(ctx context.Context, sessionID, oldSHA, newSHA string, ttl time.Duration) error {
	now := time.Now()
	status, err := rotateLua.Run(ctx, r.redis,
		[]string{r.key(sessionID)},
		oldSHA,
		newSHA,
		now.Unix(),
		now.Add(ttl).Unix(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusMismatch:
		return ErrRefreshMismatch
	default:
		return ErrNotFound
	}
}

// Delete removes a session. Deleting an already-deleted session is a no-op.
func (r *Registry) Delete(ctx context.Context, userID, sessionID string) error {
	err := deleteLua.Run(ctx, r.redis,
		[]string{r.key(sessionID), r.indexKey(userID)},
		sessionID,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ListForUser returns the user's live sessions, pruning index entries whose
// session hash has already expired.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := r.redis.SMembers(ctx, r.indexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sessions := make([]*Session, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		sess, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		// Best effort; the sweeper catches anything missed here.
		_ = r.redis.SRem(ctx, r.indexKey(userID), stale...).Err()
	}
	return sessions, nil
}

// DeleteAllForUser revokes every session the user owns and returns how many
// were live.
func (r *Registry) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	return r.deleteAllExcept(ctx, userID, "")
}

// DeleteAllExcept revokes every session the user owns other than keepID and
// returns how many were revoked.
func (r *Registry) DeleteAllExcept(ctx context.Context, userID, keepID string) (int, error) {
	if keepID == "" {
		return 0, errors.New("keepID must not be empty")
	}
	return r.deleteAllExcept(ctx, userID, keepID)
}

func (r *Registry) deleteAllExcept(ctx context.Context, userID, keepID string) (int, error) {
	ids, err := r.redis.SMembers(ctx, r.indexKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		if id == keepID {
			continue
		}
		existed, err := r.redis.Del(ctx, r.key(id)).Result()
		if err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if err := r.redis.SRem(ctx, r.indexKey(userID), id).Err(); err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if existed > 0 {
			revoked++
		}
	}
	return revoked, nil
}

// PruneUserIndex drops index entries whose session hash no longer exists.
// Safe to run concurrently with live traffic.
func (r *Registry) PruneUserIndex(ctx context.Context, userID string) error {
	ids, err := r.redis.SMembers(ctx, r.indexKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, id := range ids {
		exists, err := r.redis.Exists(ctx, r.key(id)).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if exists == 0 {
			if err := r.redis.SRem(ctx, r.indexKey(userID), id).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
	}
	return nil
}

// ScanUserIndexes walks every per-user index key and invokes fn with the
// user ID. Used by the background sweeper.
func (r *Registry) ScanUserIndexes(ctx context.Context, fn func(userID string) error) error {
	match := r.indexKey("*")
	var cursor uint64
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, match, 128).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, key := range keys {
			userID := key[len(r.indexKey("")):]
			if err := fn(userID); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping verifies backend reachability.
func (r *Registry) Ping(ctx context.Context) error {
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func decodeSession(id string, fields map[string]string) *Session {
	return &Session{
		ID:         id,
		UserID:     fields["user_id"],
		DeviceID:   fields["device_id"],
		UserAgent:  fields["user_agent"],
		IP:         fields["ip"],
		RefreshSHA: fields["refresh_sha"],
		CreatedAt:  unixField(fields, "created_at"),
		LastUsedAt: unixField(fields, "last_used_at"),
		ExpiresAt:  unixField(fields, "expires_at"),
	}
}

func unixField(fields map[string]string, name string) time.Time {
	sec, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
