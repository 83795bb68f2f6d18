package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKindAndDomain(t *testing.T) {
	err := fmt.Errorf("update: %w", Store(NotFound, "update", errors.New("404")))

	tests := []struct {
		name   string
		target *Error
		want   bool
	}{
		{"kind only", &Error{Kind: NotFound}, true},
		{"kind and domain", &Error{Domain: DomainStore, Kind: NotFound}, true},
		{"wrong domain", &Error{Domain: DomainAuth, Kind: NotFound}, false},
		{"wrong kind", &Error{Kind: Serialization}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(err, tt.target); got != tt.want {
				t.Fatalf("errors.Is = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorText(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Auth(NetworkUnavailable, "sign_in", cause)
	if got, want := err.Error(), "auth sign_in: network unavailable: dial tcp: refused"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not unwrapped")
	}
	if got := (&Error{Domain: DomainStore, Kind: "quota"}).Error(); got != "store: quota" {
		t.Fatalf("custom kind = %q", got)
	}
}

func TestAsKeepsClassifiedErrors(t *testing.T) {
	if As(DomainStore, "x", nil) != nil {
		t.Fatal("nil should stay nil")
	}

	orig := Store(Serialization, "subscribe", errors.New("bad json"))
	if got := As(DomainAuth, "other", fmt.Errorf("wrapped: %w", orig)); got != orig {
		t.Fatalf("As = %+v, want the original", got)
	}

	got := As(DomainStore, "delete", errors.New("boom"))
	if got.Kind != Unknown || got.Domain != DomainStore || got.Op != "delete" {
		t.Fatalf("As = %+v", got)
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Auth(InvalidCredentials, "", nil), "Invalid email or password."},
		{Store(NotFound, "", nil), "That todo no longer exists."},
		{Store(Unknown, "", errors.New("disk full")), "disk full"},
		{Store(Unknown, "", nil), "Something went wrong."},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Errorf("Message(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(fmt.Errorf("x: %w", Auth(ProviderRejected, "", nil))); got != ProviderRejected {
		t.Fatalf("KindOf = %q", got)
	}
	if got := KindOf(errors.New("plain")); got != Unknown {
		t.Fatalf("KindOf(plain) = %q", got)
	}
}
