package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose tags a token as usable for exactly one role. A refresh token
// presented where an access token is expected (or the reverse) is rejected
// as invalid, not expired.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrExpired reports a structurally valid, correctly signed token whose
	// lifetime has passed. Callers should prompt a refresh.
	ErrExpired = errors.New("token expired")

	// ErrInvalid reports a token that is malformed, carries a bad signature,
	// or is presented for the wrong purpose. Callers should force re-login.
	ErrInvalid = errors.New("token invalid")
)

// Claims is the payload carried by both access and refresh tokens. The
// purpose claim is embedded at signing time and enforced at verification.
type Claims struct {
	UserID    string  `json:"uid"`
	Email     string  `json:"email,omitempty"`
	DeviceID  string  `json:"did,omitempty"`
	SessionID string  `json:"sid"`
	Purpose   Purpose `json:"pur"`
	jwt.RegisteredClaims
}

// Config holds signing material and per-purpose lifetimes. The key material
// is read once at construction and never mutated afterwards.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	// Secret is the HMAC key for hs256, or the ed25519 private key
	// (raw or PEM) for ed25519.
	Secret []byte
	// PublicKey is required for ed25519 verification. Ignored for hs256.
	PublicKey []byte
	Issuer    string
	Leeway    time.Duration
}

// Codec signs and verifies the paired access/refresh tokens.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.Secret); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}
	return &Codec{config: cfg}, nil
}

// TTL returns the configured lifetime for the given purpose.
func (c *Codec) TTL(purpose Purpose) time.Duration {
	if purpose == PurposeRefresh {
		return c.config.RefreshTTL
	}
	return c.config.AccessTTL
}

// Issue signs claims for the given purpose with the purpose's TTL. The
// IssuedAt, ExpiresAt, Issuer, and Purpose fields of claims are overwritten;
// the caller controls everything else, including the token ID.
func (c *Codec) Issue(claims Claims, purpose Purpose) (string, error) {
	now := time.Now()
	claims.Purpose = purpose
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.TTL(purpose)))
	if c.config.Issuer != "" {
		claims.Issuer = c.config.Issuer
	}

	tok := jwt.NewWithClaims(c.method(), claims)
	key, err := c.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Verify parses and validates tokenStr, enforcing that it was issued for
// expectedPurpose. Expiry surfaces as ErrExpired; every other failure,
// including a purpose mismatch, surfaces as ErrInvalid.
func (c *Codec) Verify(tokenStr string, expectedPurpose Purpose) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.Purpose != expectedPurpose {
		return nil, fmt.Errorf("%w: purpose mismatch", ErrInvalid)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	return claims, nil
}

func (c *Codec) method() jwt.SigningMethod {
	if c.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (c *Codec) signKey() (interface{}, error) {
	if c.config.SigningMethod == MethodEd25519 {
		return parseEdPrivateKey(c.config.Secret)
	}
	return c.config.Secret, nil
}

func (c *Codec) verifyKey() (interface{}, error) {
	if c.config.SigningMethod == MethodEd25519 {
		return parseEdPublicKey(c.config.PublicKey)
	}
	return c.config.Secret, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
