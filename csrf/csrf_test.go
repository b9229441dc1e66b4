package csrf

import (
	"encoding/base64"
	"testing"
)

func TestNewTokenLengthAndUniqueness(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	b, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("token is not base64url: %v", err)
	}
	if len(raw) != tokenBytes {
		t.Fatalf("token entropy = %d bytes, want %d", len(raw), tokenBytes)
	}
	if a == b {
		t.Fatal("two tokens must not collide")
	}
}

func TestEqual(t *testing.T) {
	tok, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	if !Equal(tok, tok) {
		t.Fatal("identical tokens must compare equal")
	}
	if Equal(tok, tok+"x") {
		t.Fatal("different lengths must not compare equal")
	}

	other, _ := NewToken()
	if Equal(tok, other) {
		t.Fatal("distinct tokens must not compare equal")
	}
}

func TestEqualRejectsEmpty(t *testing.T) {
	if Equal("", "") {
		t.Fatal("empty tokens must never match")
	}
	tok, _ := NewToken()
	if Equal(tok, "") || Equal("", tok) {
		t.Fatal("empty side must never match")
	}
}
