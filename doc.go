// Package authkit is a Redis-backed authentication engine for the admin
// suite services. It owns the full account-session lifecycle: argon2id
// password storage, paired access/refresh JWTs, single-winner refresh
// rotation with replay detection, per-account login lockout, single-use
// password-reset and email-verification tokens, and an asynchronous
// audit trail.
//
// The entry point is the Builder:
//
//	svc, err := authkit.New().
//		WithRedis(rdb).
//		WithUserStore(store).
//		Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
// Callers supply the credential store (see UserStore) and optionally a
// Mailer and an AuditSink; everything session-shaped lives in Redis.
// HTTP plumbing is layered on separately by the middleware and httpapi
// packages, so the Service can also back CLIs, jobs, or RPC servers
// directly.
package authkit
