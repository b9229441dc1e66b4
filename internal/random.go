package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"github.com/google/uuid"
)

const secretSize = 32

// OneTimeToken is the opaque credential handed to the user for password
// reset and email verification: a random ID locating the server-side record
// plus a secret whose digest the record stores.
type OneTimeToken struct {
	// ID locates the stored record.
	ID string
	// SecretSHA is the hex SHA-256 of the secret, for storage.
	SecretSHA string
	// Encoded is the full token delivered to the user.
	Encoded string
}

// NewOneTimeToken generates a fresh token: 16 random ID bytes (a UUID) and
// a 32-byte secret, concatenated and base64url-encoded without padding.
func NewOneTimeToken() (OneTimeToken, error) {
	id := uuid.New()

	var secret [secretSize]byte
	if _, err := io.ReadFull(rand.Reader, secret[:]); err != nil {
		return OneTimeToken{}, err
	}

	raw := make([]byte, 0, len(id)+secretSize)
	raw = append(raw, id[:]...)
	raw = append(raw, secret[:]...)

	sum := sha256.Sum256(secret[:])
	return OneTimeToken{
		ID:        id.String(),
		SecretSHA: hex.EncodeToString(sum[:]),
		Encoded:   base64.RawURLEncoding.EncodeToString(raw),
	}, nil
}

// ParseOneTimeToken splits an encoded token back into its record ID and
// secret digest. It never touches the store; a syntactically broken token
// fails here without a lookup.
func ParseOneTimeToken(encoded string) (id, secretSHA string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", errors.New("malformed one-time token")
	}
	if len(raw) != 16+secretSize {
		return "", "", errors.New("invalid one-time token size")
	}

	parsed, err := uuid.FromBytes(raw[:16])
	if err != nil {
		return "", "", errors.New("invalid one-time token id")
	}

	sum := sha256.Sum256(raw[16:])
	return parsed.String(), hex.EncodeToString(sum[:]), nil
}

// HashTokenID returns the hex SHA-256 of a token identifier. Sessions store
// this digest of the refresh token's ID rather than anything replayable.
func HashTokenID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
