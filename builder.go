package authkit

import (
	"encoding/base64"
	"errors"
	"log"

	"github.com/adminsuite/authkit/internal/limiters"
	"github.com/adminsuite/authkit/internal/stores"
	"github.com/adminsuite/authkit/password"
	"github.com/adminsuite/authkit/session"
	"github.com/adminsuite/authkit/token"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a Service. Collaborators owned by the platform (user
// store, audit sink, mailer) are injected; everything the auth core owns is
// constructed here from Config.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore UserStore
	auditSink AuditSink
	mailer    Mailer
	logger    *log.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing sessions, lockout counters, and
// single-use tokens.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the credential-store collaborator. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithAuditSink sets the audit collaborator. Optional; events are dropped
// without one.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMailer sets the outbound-email collaborator. Optional; the default
// logs instead of sending.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithLogger sets the internal logger. Optional; defaults to log.Default.
func (b *Builder) WithLogger(l *log.Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the configuration, constructs every component, and
// returns the ready Service. A Builder can be used once.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.userStore == nil {
		return nil, errors.New("user store is required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(b.config.Token)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}

	// Hash a throwaway value once so login can burn the same CPU on
	// unknown emails as on known ones.
	dummyHash, err := hasher.Hash(base64.RawURLEncoding.EncodeToString([]byte(uuid.NewString())))
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}
	mailer := b.mailer
	if mailer == nil {
		mailer = &LogMailer{Logger: logger}
	}

	s := &Service{
		config:    b.config,
		users:     b.userStore,
		codec:     codec,
		hasher:    hasher,
		sessions:  session.NewRegistry(b.redis, b.config.Session.RedisPrefix),
		lockout:   limiters.NewLockout(b.redis, limiters.LockoutConfig(b.config.Lockout)),
		resets:    stores.NewOneTime(b.redis, b.config.Session.RedisPrefix+":pwreset"),
		verifies:  stores.NewOneTime(b.redis, b.config.Session.RedisPrefix+":everify"),
		audit:     newAuditDispatcher(b.config.Audit, b.auditSink),
		mailer:    mailer,
		logger:    logger,
		dummyHash: dummyHash,
	}
	s.startSweeper()

	b.built = true
	return s, nil
}
