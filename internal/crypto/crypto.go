// Package crypto holds the password hashing and sign in nonce primitives
// used by the todos server and CLI. Passwords are stored as Argon2id hashes;
// external credential sign in binds the provider token to a client nonce by
// its SHA-256 digest.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// saltLen is the Argon2id salt length in bytes.
	saltLen = 16
	// keyLen is the derived hash length in bytes.
	keyLen = 32

	// Argon2id parameters.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4

	// NonceLen is the default length of a sign in nonce.
	NonceLen = 32
	// nonceCharset matches the characters identity providers accept in
	// a nonce claim.
	nonceCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVXYZabcdefghijklmnopqrstuvwxyz-._"
)

// ErrMalformedHash is returned when a stored password hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// HashPassword derives an Argon2id hash of password with a fresh salt and
// returns it in the encoded form $argon2id$v=19$m=..,t=..,p=..$salt$hash.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return encodeHash(argonTime, argonMemory, argonThreads, salt, password), nil
}

// VerifyPassword reports whether password matches an encoded hash produced by
// HashPassword. The comparison is constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrMalformedHash
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrMalformedHash
	}

	got := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func encodeHash(time, memory uint32, threads uint8, salt []byte, password string) string {
	key := argon2.IDKey([]byte(password), salt, time, memory, threads, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, time, threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

// NewNonce returns a random nonce of length n drawn from the provider safe
// charset. Bytes that would bias the distribution are rejected.
func NewNonce(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("nonce length must be positive")
	}
	limit := 256 - 256%len(nonceCharset)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate nonce: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, nonceCharset[int(b)%len(nonceCharset)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// HashNonce returns the lowercase hex SHA-256 digest of a raw nonce. The
// provider embeds this digest in the identity token; the raw value is only
// sent to the todos server.
func HashNonce(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
