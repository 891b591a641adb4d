// Package identity talks to the external identity directory that owns user
// accounts. This core never manages identity lifecycle itself; it resolves
// principal records for display and issues best-effort deletions when an
// employee is offboarded.
package identity

import (
	"context"
	"errors"
)

// Principal is an identity record as the directory reports it.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Directory is the identity collaborator surface the core depends on.
type Directory interface {
	// Resolve returns the records for the given principal ids. Unknown ids
	// are omitted, not errors.
	Resolve(ctx context.Context, ids []string) ([]Principal, error)
	// Delete removes the identity record. Deleting an already-absent
	// identity is not an error.
	Delete(ctx context.Context, id string) error
}

// ErrNotConfigured indicates the directory endpoint or its service token is
// missing from the environment.
var ErrNotConfigured = errors.New("identity: directory not configured")
