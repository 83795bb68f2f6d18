package api

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/marcus/todos/internal/crypto"
)

var (
	errCredentialDisabled = errors.New("external credential sign in is not configured")
	errNonceMismatch      = errors.New("nonce does not match identity token")
)

// CredentialClaims are the claims read from a provider identity token. The
// nonce claim holds the hex SHA-256 of the raw nonce the client generated.
type CredentialClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Nonce string `json:"nonce"`
}

// CredentialVerifier validates HS256 identity tokens from a single provider.
type CredentialVerifier struct {
	provider string
	issuer   string
	secret   []byte
}

// NewCredentialVerifier returns a verifier. An empty secret disables it.
func NewCredentialVerifier(provider, issuer, secret string) *CredentialVerifier {
	return &CredentialVerifier{provider: provider, issuer: issuer, secret: []byte(secret)}
}

// Enabled reports whether a signing secret is configured.
func (v *CredentialVerifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Provider names the identity provider users are bound to.
func (v *CredentialVerifier) Provider() string { return v.provider }

// Verify parses idToken and checks signature, expiry, issuer and nonce.
func (v *CredentialVerifier) Verify(idToken, rawNonce string) (*CredentialClaims, error) {
	if !v.Enabled() {
		return nil, errCredentialDisabled
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &CredentialClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse identity token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("identity token has no subject")
	}

	want := crypto.HashNonce(rawNonce)
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(want)) != 1 {
		return nil, errNonceMismatch
	}
	return claims, nil
}

// Sign mints a token for claims with the verifier's secret. Used by tests and
// by local development tooling that stands in for a provider.
func (v *CredentialVerifier) Sign(claims CredentialClaims) (string, error) {
	if !v.Enabled() {
		return "", errCredentialDisabled
	}
	if claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
