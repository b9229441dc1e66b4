// Package password provides argon2id password hashing with PHC-format
// encoding and constant-time verification.
package password
