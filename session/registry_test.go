package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRegistry(rdb, "ak"), mr
}

func makeSession(id, userID, refreshSHA string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		UserID:     userID,
		DeviceID:   "device-1",
		UserAgent:  "test-agent",
		IP:         "192.0.2.1",
		RefreshSHA: refreshSHA,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(time.Hour),
	}
}

func TestSaveAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	sess := makeSession("s1", "u1", "sha-1")
	if err := reg.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := reg.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != "u1" || got.DeviceID != "device-1" || got.RefreshSHA != "sha-1" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)

	if _, err := reg.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAfterExpiry(t *testing.T) {
	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Save(ctx, makeSession("s1", "u1", "sha-1"), time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := reg.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestRotateSwapsIdentifier(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Save(ctx, makeSession("s1", "u1", "old-sha"), time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := reg.Rotate(ctx, "s1", "old-sha", "new-sha", time.Hour); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	got, err := reg.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RefreshSHA != "new-sha" {
		t.Fatalf("refresh sha = %q, want new-sha", got.RefreshSHA)
	}

	// The consumed identifier must not rotate a second time.
	if err := reg.Rotate(ctx, "s1", "old-sha", "newer-sha", time.Hour); !errors.Is(err, ErrRefreshMismatch) {
		t.Fatalf("expected ErrRefreshMismatch on replay, got %v", err)
	}
}

func TestRotateMissingSession(t *testing.T) {
	reg, _ := newTestRegistry(t)

	err := reg.Rotate(context.Background(), "ghost", "a", "b", time.Hour)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Save(ctx, makeSession("s1", "u1", "stale"), time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			results <- reg.Rotate(ctx, "s1", "stale", "fresh-"+string(rune('a'+i)), time.Hour)
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRefreshMismatch):
			losses++
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1 (losses=%d)", wins, losses)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Save(ctx, makeSession("s1", "u1", "sha"), time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := reg.Delete(ctx, "u1", "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := reg.Delete(ctx, "u1", "s1"); err != nil {
		t.Fatalf("second Delete must be a no-op, got %v", err)
	}

	if _, err := reg.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListForUserPrunesStaleEntries(t *testing.T) {
	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Save(ctx, makeSession("s1", "u1", "a"), time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := reg.Save(ctx, makeSession("s2", "u1", "b"), time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Expire s1 only; its index entry becomes stale.
	mr.FastForward(2 * time.Minute)

	sessions, err := reg.ListForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s2" {
		t.Fatalf("expected only s2, got %+v", sessions)
	}
}

func TestDeleteAllExceptKeepsCurrent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := reg.Save(ctx, makeSession(id, "u1", "sha-"+id), time.Hour); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	count, err := reg.DeleteAllExcept(ctx, "u1", "s2")
	if err != nil {
		t.Fatalf("DeleteAllExcept: %v", err)
	}
	if count != 2 {
		t.Fatalf("revoked = %d, want 2", count)
	}

	if _, err := reg.Get(ctx, "s2"); err != nil {
		t.Fatalf("current session must survive: %v", err)
	}
	if _, err := reg.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("s1 should be gone, got %v", err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if err := reg.Save(ctx, makeSession(id, "u1", "sha"), time.Hour); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	// Another user's session must be untouched.
	if err := reg.Save(ctx, makeSession("o1", "u2", "sha"), time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	count, err := reg.DeleteAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}
	if count != 2 {
		t.Fatalf("revoked = %d, want 2", count)
	}
	if _, err := reg.Get(ctx, "o1"); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}
}

func TestScanUserIndexes(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		if err := reg.Save(ctx, makeSession("s-"+u, u, "sha"), time.Hour); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	seen := map[string]bool{}
	err := reg.ScanUserIndexes(ctx, func(userID string) error {
		seen[userID] = true
		return nil
	})
	if err != nil {
		t.Fatalf("ScanUserIndexes: %v", err)
	}
	for _, u := range []string{"u1", "u2", "u3"} {
		if !seen[u] {
			t.Fatalf("user %s not visited: %v", u, seen)
		}
	}
}
