package tenant

import (
	"context"
	"time"
)

// Repository describes the persistence operations required by the tenant
// subsystem. Implementations must map storage-level uniqueness violations to
// ErrConflict and missing rows to ErrNotFound.
type Repository interface {
	CreateStore(ctx context.Context, s *Store) error
	GetStore(ctx context.Context, id string) (*Store, error)
	UpdateStore(ctx context.Context, id string, upd StoreUpdate) (*Store, error)

	// CreateMembership fails with ErrConflict when a row for the
	// (loja, usuario) pair already exists.
	CreateMembership(ctx context.Context, m *Membership) error
	// EnsureOwnerMembership is an idempotent upsert: an existing row for the
	// pair is left untouched, never duplicated or downgraded.
	EnsureOwnerMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, lojaID, usuarioID string) (*Membership, error)
	ListMemberships(ctx context.Context, lojaID string) ([]*Membership, error)
	DeleteMembership(ctx context.Context, lojaID, usuarioID string) error

	CreateInviteCode(ctx context.Context, c *InviteCode) error
	FindInviteCode(ctx context.Context, code string) (*InviteCode, error)
	// ClaimInviteCode flips used from false to true in a single conditional
	// write, recording the redeeming principal. It reports true for exactly
	// one caller per code; concurrent claimants observe false.
	ClaimInviteCode(ctx context.Context, id, usedBy string) (bool, error)
	// PruneInviteCodes removes codes that expired before the cutoff and were
	// never used. Used codes are retained for audit.
	PruneInviteCodes(ctx context.Context, cutoff time.Time) (int64, error)

	GetCredential(ctx context.Context, id string) (*Credential, error)
	DeleteCredential(ctx context.Context, id string) error
}
