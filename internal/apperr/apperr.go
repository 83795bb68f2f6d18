// Package apperr is the single error taxonomy shared by the auth and todo
// store adapters. Adapters classify transport and provider failures into an
// *Error before anything reaches the reducers.
package apperr

import "errors"

// Domain says which adapter produced the error
type Domain string

const (
	DomainAuth  Domain = "auth"
	DomainStore Domain = "store"
)

// Kind is the failure category
type Kind string

const (
	// auth
	InvalidCredentials Kind = "invalid_credentials"
	ProviderRejected   Kind = "provider_rejected"

	// store
	Serialization Kind = "serialization"
	NotFound      Kind = "not_found"

	// both
	NetworkUnavailable Kind = "network_unavailable"
	Unknown            Kind = "unknown"
)

// Error is a classified adapter failure
type Error struct {
	Domain Domain
	Kind   Kind
	Op     string
	Err    error
}

// Auth builds an auth failure
func Auth(kind Kind, op string, err error) *Error {
	return &Error{Domain: DomainAuth, Kind: kind, Op: op, Err: err}
}

// Store builds a store failure
func Store(kind Kind, op string, err error) *Error {
	return &Error{Domain: DomainStore, Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Domain)
	if e.Op != "" {
		msg += " " + e.Op
	}
	msg += ": " + kindText(e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by domain when the target sets one.
// This lets callers write errors.Is(err, &apperr.Error{Kind: apperr.NotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Domain != "" && t.Domain != e.Domain {
		return false
	}
	return t.Kind == e.Kind
}

// Message is the short text shown to the user
func (e *Error) Message() string {
	switch e.Kind {
	case InvalidCredentials:
		return "Invalid email or password."
	case ProviderRejected:
		return "The sign in provider rejected the request."
	case NetworkUnavailable:
		return "The server could not be reached. Check your connection and try again."
	case Serialization:
		return "The server sent data that could not be read."
	case NotFound:
		return "That todo no longer exists."
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "Something went wrong."
	}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// As returns the first *Error in err's chain. Unclassified errors are wrapped
// as Unknown in the given domain.
func As(domain Domain, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Domain: domain, Kind: Unknown, Op: op, Err: err}
}

// Message returns the user facing text for any error
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}

func kindText(k Kind) string {
	switch k {
	case InvalidCredentials:
		return "invalid credentials"
	case ProviderRejected:
		return "provider rejected"
	case NetworkUnavailable:
		return "network unavailable"
	case Serialization:
		return "serialization failed"
	case NotFound:
		return "not found"
	case Unknown, "":
		return "unknown error"
	default:
		return string(k)
	}
}
