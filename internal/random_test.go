package internal

import "testing"

func TestOneTimeTokenRoundTrip(t *testing.T) {
	tok, err := NewOneTimeToken()
	if err != nil {
		t.Fatalf("NewOneTimeToken: %v", err)
	}
	if tok.ID == "" || tok.SecretSHA == "" || tok.Encoded == "" {
		t.Fatalf("incomplete token: %+v", tok)
	}

	id, sha, err := ParseOneTimeToken(tok.Encoded)
	if err != nil {
		t.Fatalf("ParseOneTimeToken: %v", err)
	}
	if id != tok.ID {
		t.Fatalf("id = %q, want %q", id, tok.ID)
	}
	if sha != tok.SecretSHA {
		t.Fatalf("secret digest did not round-trip")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "!!!", "c2hvcnQ", "AAAA"} {
		if _, _, err := ParseOneTimeToken(bad); err == nil {
			t.Errorf("ParseOneTimeToken(%q): expected error", bad)
		}
	}
}

func TestTokensAreUnique(t *testing.T) {
	a, err := NewOneTimeToken()
	if err != nil {
		t.Fatalf("NewOneTimeToken: %v", err)
	}
	b, err := NewOneTimeToken()
	if err != nil {
		t.Fatalf("NewOneTimeToken: %v", err)
	}
	if a.Encoded == b.Encoded || a.ID == b.ID {
		t.Fatal("two tokens must not collide")
	}
}

func TestHashTokenIDStable(t *testing.T) {
	if HashTokenID("abc") != HashTokenID("abc") {
		t.Fatal("digest must be deterministic")
	}
	if HashTokenID("abc") == HashTokenID("abd") {
		t.Fatal("distinct inputs must not collide")
	}
}
