package authkit

import (
	"context"
	"testing"
	"time"
)

func TestSweepPrunesStaleSessionIndexes(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "admin@example.com", "correct horse battery")
	stale := env.mustLogin(t, "admin@example.com", "correct horse battery")
	live := env.mustLogin(t, "admin@example.com", "correct horse battery")

	// Drop one session hash behind the registry's back. Its index set
	// member lingers until a sweep visits the user.
	env.redis.Del("ak:sess:" + stale.SessionID)

	env.svc.sweepOnce()

	members, err := env.redis.SMembers("ak:idx:" + user.ID)
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(members) != 1 || members[0] != live.SessionID {
		t.Fatalf("index members after sweep = %v, want [%s]", members, live.SessionID)
	}

	sessions, err := env.svc.ListSessions(context.Background(), user.ID, "")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions after sweep = %d, want 1", len(sessions))
	}
}

func TestSweeperLifecycle(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Sweep.Interval = 10 * time.Millisecond
	})
	env.register(t, "admin@example.com", "correct horse battery")
	env.mustLogin(t, "admin@example.com", "correct horse battery")

	time.Sleep(50 * time.Millisecond)

	// Close must stop the sweeper goroutine without hanging.
	done := make(chan struct{})
	go func() {
		env.svc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the sweeper")
	}
}
