// Package remote adapts the todos server client to the auth and todo store
// contracts the reducers consume. Every error leaving this package is an
// *apperr.Error.
package remote

import (
	"context"
	"errors"
	"net/http"

	"github.com/marcus/todos/internal/apperr"
	"github.com/marcus/todos/internal/syncclient"
)

func classifyAuth(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *syncclient.APIError
	switch {
	case isNetwork(err):
		return apperr.Auth(apperr.NetworkUnavailable, op, err)
	case errors.Is(err, syncclient.ErrUnauthorized):
		return apperr.Auth(apperr.InvalidCredentials, op, err)
	case errors.Is(err, syncclient.ErrForbidden),
		errors.Is(err, syncclient.ErrConflict),
		errors.Is(err, syncclient.ErrRateLimited):
		return apperr.Auth(apperr.ProviderRejected, op, err)
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest:
		return apperr.Auth(apperr.InvalidCredentials, op, err)
	}
	return apperr.Auth(apperr.Unknown, op, err)
}

func classifyStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *syncclient.APIError
	switch {
	case isNetwork(err):
		return apperr.Store(apperr.NetworkUnavailable, op, err)
	case errors.Is(err, syncclient.ErrNotFound):
		return apperr.Store(apperr.NotFound, op, err)
	case errors.Is(err, syncclient.ErrMalformed):
		return apperr.Store(apperr.Serialization, op, err)
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest:
		return apperr.Store(apperr.Serialization, op, err)
	}
	return apperr.Store(apperr.Unknown, op, err)
}

func isNetwork(err error) bool {
	return errors.Is(err, syncclient.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
