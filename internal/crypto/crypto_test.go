package crypto

import (
	"strings"
	"testing"
)

func TestHashVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected encoding: %q", hash)
	}

	ok, err := VerifyPassword("correct horse", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatal("expected password to verify")
	}

	ok, err = VerifyPassword("battery staple", hash)
	if err != nil {
		t.Fatalf("VerifyPassword wrong: %v", err)
	}
	if ok {
		t.Fatal("wrong password must not verify")
	}
}

func TestHashPasswordSalted(t *testing.T) {
	a, _ := HashPassword("same")
	b, _ := HashPassword("same")
	if a == b {
		t.Fatal("two hashes of the same password should differ by salt")
	}
}

func TestVerifyPasswordMalformed(t *testing.T) {
	tests := []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA",
	}
	for _, enc := range tests {
		if _, err := VerifyPassword("pw", enc); err != ErrMalformedHash {
			t.Errorf("VerifyPassword(%q) err = %v, want ErrMalformedHash", enc, err)
		}
	}
}

func TestNewNonce(t *testing.T) {
	n, err := NewNonce(NonceLen)
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	if len(n) != NonceLen {
		t.Fatalf("len = %d, want %d", len(n), NonceLen)
	}
	for _, c := range n {
		if !strings.ContainsRune(nonceCharset, c) {
			t.Fatalf("nonce contains %q outside charset", c)
		}
	}

	other, _ := NewNonce(NonceLen)
	if n == other {
		t.Fatal("two nonces should not collide")
	}

	if _, err := NewNonce(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestHashNonce(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashNonce("abc"); got != want {
		t.Fatalf("HashNonce = %s, want %s", got, want)
	}
}
