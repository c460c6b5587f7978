// Package models defines the caller identity threaded through every call.
package models

import "errors"

// PrincipalKind distinguishes authenticated users from guest identities.
type PrincipalKind string

const (
	// PrincipalAuthenticated is a logged-in user with a stable user ID.
	PrincipalAuthenticated PrincipalKind = "authenticated"
	// PrincipalGuest is an unauthenticated caller scoped to a session token.
	PrincipalGuest PrincipalKind = "guest"
)

// ErrEmptyPrincipalID is returned when a principal is built without an identity.
var ErrEmptyPrincipalID = errors.New("principal id cannot be empty")

// Principal is the explicit caller identity. It replaces the ambient
// "unauthenticated caller falls back to a well-known guest id" behavior:
// guests carry their own session-scoped id so two guests can never read
// each other's sessions.
type Principal struct {
	Kind PrincipalKind `json:"kind"`
	ID   string        `json:"id"`
}

// NewAuthenticated builds a principal for a logged-in user.
func NewAuthenticated(userID string) (Principal, error) {
	if userID == "" {
		return Principal{}, ErrEmptyPrincipalID
	}
	return Principal{Kind: PrincipalAuthenticated, ID: userID}, nil
}

// NewGuest builds a principal for an unauthenticated caller.
func NewGuest(sessionScopedID string) (Principal, error) {
	if sessionScopedID == "" {
		return Principal{}, ErrEmptyPrincipalID
	}
	return Principal{Kind: PrincipalGuest, ID: sessionScopedID}, nil
}

// Key returns the storage key for this principal. Guest keys are
// namespaced so a guest token can never collide with a real user ID.
func (p Principal) Key() string {
	if p.Kind == PrincipalGuest {
		return "guest:" + p.ID
	}
	return "user:" + p.ID
}

// IsZero reports whether the principal carries no identity.
func (p Principal) IsZero() bool {
	return p.ID == ""
}
