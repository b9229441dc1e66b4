package authkit

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/adminsuite/authkit/password"
)

// memStore is an in-memory UserStore for tests. Email lookups are
// case-insensitive, matching the contract real stores must honor.
type memStore struct {
	mu    sync.Mutex
	users map[string]*UserRecord // by ID
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*UserRecord)}
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memStore) FindByID(_ context.Context, id string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, user *UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicateEmail
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) Update(_ context.Context, id string, update UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.ActiveDeviceID != nil {
		u.ActiveDeviceID = *update.ActiveDeviceID
	}
	if update.EmailVerified != nil {
		u.EmailVerified = *update.EmailVerified
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) setActive(t *testing.T, id string, active bool) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		t.Fatalf("no user %s in store", id)
	}
	u.Active = active
}

// captureMailer records the last token handed out per flow.
type captureMailer struct {
	mu           sync.Mutex
	resetToken   string
	verifyToken  string
	resetEmails  []string
	verifyEmails []string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetToken = token
	m.resetEmails = append(m.resetEmails, email)
	return nil
}

func (m *captureMailer) SendVerification(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyToken = token
	m.verifyEmails = append(m.verifyEmails, email)
	return nil
}

func (m *captureMailer) lastResetToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetToken
}

func (m *captureMailer) lastVerifyToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyToken
}

func (m *captureMailer) resetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resetEmails)
}

// captureSink collects audit events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *captureSink) Log(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) byAction(action string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, e := range s.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	svc    *Service
	store  *memStore
	mailer *captureMailer
	sink   *captureSink
	redis  *miniredis.Miniredis
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.AccessTTL = time.Minute
	cfg.Token.RefreshTTL = time.Hour
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.Lockout.Threshold = 3
	cfg.Lockout.Window = time.Minute
	cfg.PasswordReset.MinResponseTime = 0
	cfg.Sweep.Interval = 0
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	store := newMemStore()
	mailer := &captureMailer{}
	sink := &captureSink{}

	svc, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(store).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(svc.Close)

	return &testEnv{svc: svc, store: store, mailer: mailer, sink: sink, redis: mr}
}

func (e *testEnv) register(t *testing.T, email, pw string) *PublicUser {
	t.Helper()
	user, err := e.svc.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: pw,
		Name:     "Test User",
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return user
}

func (e *testEnv) login(t *testing.T, email, pw string) LoginOutcome {
	t.Helper()
	out, err := e.svc.Login(context.Background(), LoginInput{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return out
}

func (e *testEnv) mustLogin(t *testing.T, email, pw string) LoginOutcome {
	t.Helper()
	out := e.login(t, email, pw)
	if out.Status != LoginOK {
		t.Fatalf("Login(%s): status = %d, want LoginOK", email, out.Status)
	}
	return out
}
