package tenant

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"lojinha.app/internal/audit"
	"lojinha.app/internal/identity"
	"lojinha.app/internal/ids"
)

const (
	// codeAlphabet deliberately drops I, O, 0 and 1 so codes survive being
	// read aloud or written down.
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 8

	// DefaultInviteTTL applies when the issuer does not pick a window.
	DefaultInviteTTL = 24 * time.Hour
	maxInviteTTL     = 720 * time.Hour
)

// NewStore carries the caller-supplied fields for store creation.
type NewStore struct {
	Nome     string
	CNPJ     string
	Endereco string
	Telefone string
}

// Redeemer identifies the principal consuming an invite code, with the
// display attributes denormalized onto the new membership.
type Redeemer struct {
	ID    string
	Nome  string
	Email string
}

// Service implements the store-scoped access-control operations. Every
// operation takes the acting principal explicitly; nothing is read from
// ambient state.
type Service struct {
	repo     Repository
	identity identity.Directory
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithIdentity wires the external identity directory used for best-effort
// identity deletion during employee removal.
func WithIdentity(dir identity.Directory) Option {
	return func(s *Service) { s.identity = dir }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service backed by the given repository.
func NewService(repo Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("tenant: repository is required")
	}
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateStore persists a new store owned by the acting principal and then
// creates the owner membership row. The membership is a denormalization:
// owner access is reconstructible from dono_id alone, so a failure to insert
// it is reported via audit but does not fail the already-committed store.
func (s *Service) CreateStore(ctx context.Context, principalID string, in NewStore, attrs DisplayAttrs) (*Store, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	in.Nome = strings.TrimSpace(in.Nome)
	if in.Nome == "" {
		return nil, fmt.Errorf("%w: nome is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	store := &Store{
		ID:        ids.New(),
		Nome:      in.Nome,
		CNPJ:      strings.TrimSpace(in.CNPJ),
		Endereco:  strings.TrimSpace(in.Endereco),
		Telefone:  strings.TrimSpace(in.Telefone),
		DonoID:    principalID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateStore(ctx, store); err != nil {
		return nil, err
	}

	member := &Membership{
		ID:           ids.New(),
		LojaID:       store.ID,
		UsuarioID:    principalID,
		Role:         RoleOwner,
		Nome:         attrs.Nome,
		Email:        attrs.Email,
		Cargo:        attrs.Cargo,
		DataAdmissao: attrs.DataAdmissao,
		Ativo:        true,
		CreatedAt:    now,
	}
	if member.DataAdmissao.IsZero() {
		member.DataAdmissao = now
	}
	if err := s.repo.EnsureOwnerMembership(ctx, member); err != nil {
		_ = audit.LogEvent(ctx, "loja.owner_membership.failed", map[string]any{
			"loja_id": store.ID,
			"dono_id": principalID,
			"error":   err.Error(),
		})
	}
	return store, nil
}

// GetStore returns a store visible to the principal: the owner or any active
// member may read it.
func (s *Service) GetStore(ctx context.Context, lojaID, principalID string) (*Store, error) {
	store, err := s.repo.GetStore(ctx, lojaID)
	if err != nil {
		return nil, err
	}
	role, err := s.roleFor(ctx, store, principalID)
	if err != nil {
		return nil, err
	}
	if role == RoleNone {
		return nil, ErrForbidden
	}
	return store, nil
}

// UpdateStore applies name/contact edits. Owner only; dono_id is immutable.
func (s *Service) UpdateStore(ctx context.Context, lojaID, principalID string, upd StoreUpdate) (*Store, error) {
	if upd.Nome != nil {
		trimmed := strings.TrimSpace(*upd.Nome)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: nome is required", ErrInvalidInput)
		}
		upd.Nome = &trimmed
	}
	if err := s.requireOwner(ctx, lojaID, principalID); err != nil {
		return nil, err
	}
	return s.repo.UpdateStore(ctx, lojaID, upd)
}

// ResolveRole computes the principal's role for a store: owner-by-reference
// first, membership row second, RoleNone otherwise.
func (s *Service) ResolveRole(ctx context.Context, lojaID, principalID string) (Role, error) {
	store, err := s.repo.GetStore(ctx, lojaID)
	if err != nil {
		return RoleNone, err
	}
	return s.roleFor(ctx, store, principalID)
}

// Members lists a store's memberships. Owners and managers only.
func (s *Service) Members(ctx context.Context, lojaID, principalID string) ([]*Membership, error) {
	role, err := s.ResolveRole(ctx, lojaID, principalID)
	if err != nil {
		return nil, err
	}
	if role != RoleOwner && role != RoleManager {
		return nil, ErrForbidden
	}
	return s.repo.ListMemberships(ctx, lojaID)
}

// IssueCode generates a single-use invite code for the store, valid for ttl
// (clamped to [1h, 30d], default 24h). Only the resolved owner may issue. A
// uniqueness collision on insert is retried exactly once.
func (s *Service) IssueCode(ctx context.Context, lojaID, principalID string, ttl time.Duration) (*InviteCode, error) {
	if err := s.requireOwner(ctx, lojaID, principalID); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	if ttl > maxInviteTTL {
		ttl = maxInviteTTL
	}

	now := s.now().UTC()
	for attempt := 0; ; attempt++ {
		code, err := randomCode()
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}
		invite := &InviteCode{
			ID:        ids.New(),
			LojaID:    lojaID,
			Code:      code,
			CreatedBy: principalID,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		err = s.repo.CreateInviteCode(ctx, invite)
		if err == nil {
			return invite, nil
		}
		if errors.Is(err, ErrConflict) && attempt == 0 {
			continue
		}
		return nil, err
	}
}

// Redeem validates and atomically consumes an invite code, creating an
// employee membership for the redeemer. The conditional claim write is the
// sole concurrency gate: it is performed before the membership insert, so at
// most one caller ever succeeds per code.
func (s *Service) Redeem(ctx context.Context, code string, by Redeemer) (*Membership, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	if strings.TrimSpace(by.ID) == "" {
		return nil, fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}

	invite, err := s.repo.FindInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if invite.Used {
		return nil, ErrAlreadyUsed
	}
	now := s.now().UTC()
	if !invite.ExpiresAt.IsZero() && invite.ExpiresAt.Before(now) {
		return nil, ErrExpired
	}

	claimed, err := s.repo.ClaimInviteCode(ctx, invite.ID, by.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost the race: another redeemer flipped the flag between our read
		// and the conditional write.
		return nil, ErrAlreadyUsed
	}

	member := &Membership{
		ID:           ids.New(),
		LojaID:       invite.LojaID,
		UsuarioID:    by.ID,
		Role:         RoleEmployee,
		Nome:         by.Nome,
		Email:        by.Email,
		DataAdmissao: now,
		Ativo:        true,
		CreatedAt:    now,
	}
	if err := s.repo.CreateMembership(ctx, member); err != nil {
		// The code is already consumed; the missing membership is a defined
		// inconsistent state and must be surfaced, never swallowed.
		_ = audit.LogEvent(ctx, "loja.invite.redeem_inconsistent", map[string]any{
			"invite_id":  invite.ID,
			"loja_id":    invite.LojaID,
			"usuario_id": by.ID,
			"error":      err.Error(),
		})
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: principal is already a member", ErrConflict)
		}
		return nil, fmt.Errorf("invite claimed but membership not created: %w", err)
	}
	return member, nil
}

// removalStep is one stage of employee removal. Hard steps abort the
// operation; soft steps are audited and skipped over.
type removalStep struct {
	name string
	hard bool
	run  func(ctx context.Context) error
}

// RemoveEmployee revokes a store employee. Steps run in order: membership
// (soft), credential (hard), external identity (soft). Revoking store access
// takes priority over cleaning up the identity record, so only the credential
// step can abort the operation.
func (s *Service) RemoveEmployee(ctx context.Context, credentialID, principalID string) error {
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return fmt.Errorf("%w: credential id is required", ErrInvalidInput)
	}
	cred, err := s.repo.GetCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, cred.LojaID, principalID); err != nil {
		return err
	}

	steps := []removalStep{
		{name: "delete membership", hard: false, run: func(ctx context.Context) error {
			if cred.AuthUserID == "" {
				return nil
			}
			err := s.repo.DeleteMembership(ctx, cred.LojaID, cred.AuthUserID)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}},
		{name: "delete credential", hard: true, run: func(ctx context.Context) error {
			return s.repo.DeleteCredential(ctx, cred.ID)
		}},
		{name: "delete identity", hard: false, run: func(ctx context.Context) error {
			if s.identity == nil || cred.AuthUserID == "" {
				return nil
			}
			return s.identity.Delete(ctx, cred.AuthUserID)
		}},
	}

	for _, step := range steps {
		err := step.run(ctx)
		if err == nil {
			continue
		}
		if step.hard {
			return fmt.Errorf("remove employee: %s: %w", step.name, err)
		}
		_ = audit.LogEvent(ctx, "loja.employee.remove_step_failed", map[string]any{
			"credential_id": cred.ID,
			"loja_id":       cred.LojaID,
			"step":          step.name,
			"error":         err.Error(),
		})
	}
	return nil
}

// PruneInviteCodes deletes expired, never-used codes. Maintenance entry
// point; there is no background scheduler.
func (s *Service) PruneInviteCodes(ctx context.Context) (int64, error) {
	return s.repo.PruneInviteCodes(ctx, s.now().UTC())
}

func (s *Service) requireOwner(ctx context.Context, lojaID, principalID string) error {
	role, err := s.ResolveRole(ctx, lojaID, principalID)
	if err != nil {
		return err
	}
	if role != RoleOwner {
		return ErrForbidden
	}
	return nil
}

func (s *Service) roleFor(ctx context.Context, store *Store, principalID string) (Role, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return RoleNone, nil
	}
	if principalID == store.DonoID {
		return RoleOwner, nil
	}
	member, err := s.repo.GetMembership(ctx, store.ID, principalID)
	if errors.Is(err, ErrNotFound) {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, err
	}
	return EffectiveRole(store.DonoID, principalID, member), nil
}

func randomCode() (string, error) {
	// Rejection sampling keeps each symbol uniform over the 31-char alphabet.
	const limit = byte(len(codeAlphabet) * (256 / len(codeAlphabet)))
	out := make([]byte, 0, codeLength)
	var buf [16]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				return string(out), nil
			}
		}
	}
}
