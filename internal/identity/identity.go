// Package identity carries the authenticated caller through a context.
package identity

import (
	"context"

	"github.com/Vasilion/UnyX-Social/pkg/apperr"
)

// Identity is what the identity provider tells us about the caller.
type Identity struct {
	UserID        string
	Authenticated bool
}

// Anonymous is the identity of an unauthenticated caller.
var Anonymous = Identity{}

// User returns an authenticated identity for userID.
func User(userID string) Identity {
	return Identity{UserID: userID, Authenticated: userID != ""}
}

// Require returns an AuthError unless the identity is authenticated.
func (id Identity) Require() error {
	if !id.Authenticated || id.UserID == "" {
		return apperr.Unauthenticated()
	}
	return nil
}

// RequireUser returns an AuthError unless the identity is authenticated as userID.
func (id Identity) RequireUser(userID string) error {
	if err := id.Require(); err != nil {
		return err
	}
	if id.UserID != userID {
		return apperr.Forbidden("caller is not a party to this conversation")
	}
	return nil
}

type ctxKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity on ctx, or Anonymous.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok {
		return id
	}
	return Anonymous
}
