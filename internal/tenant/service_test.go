package tenant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lojinha.app/internal/identity"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *InMemory) {
	t.Helper()
	repo := NewInMemory()
	svc, err := NewService(repo, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo
}

func mustCreateStore(t *testing.T, svc *Service, ownerID, nome string) *Store {
	t.Helper()
	store, err := svc.CreateStore(context.Background(), ownerID, NewStore{Nome: nome}, DisplayAttrs{})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	return store
}

func TestCreateStoreCreatesOwnerMembership(t *testing.T) {
	svc, repo := newTestService(t)
	store := mustCreateStore(t, svc, "owner-1", "Mercadinho")

	m, err := repo.GetMembership(context.Background(), store.ID, "owner-1")
	if err != nil {
		t.Fatalf("GetMembership: %v", err)
	}
	if m.Role != RoleOwner {
		t.Fatalf("expected owner membership, got %q", m.Role)
	}
	if !m.Ativo {
		t.Fatalf("owner membership must be active")
	}
}

func TestCreateStoreValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.CreateStore(context.Background(), "", NewStore{Nome: "x"}, DisplayAttrs{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty principal, got %v", err)
	}
	if _, err := svc.CreateStore(context.Background(), "owner-1", NewStore{Nome: "   "}, DisplayAttrs{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty nome, got %v", err)
	}
}

func TestIssueCodeFormatAndDefaults(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, WithClock(func() time.Time { return base }))
	store := mustCreateStore(t, svc, "owner-1", "Padaria")

	invite, err := svc.IssueCode(context.Background(), store.ID, "owner-1", 0)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if len(invite.Code) != codeLength {
		t.Fatalf("unexpected code length: %q", invite.Code)
	}
	for _, c := range invite.Code {
		if !strings.ContainsRune(codeAlphabet, c) {
			t.Fatalf("code %q contains symbol outside the alphabet", invite.Code)
		}
	}
	if !invite.ExpiresAt.Equal(base.Add(DefaultInviteTTL)) {
		t.Fatalf("expected default TTL, got expiry %v", invite.ExpiresAt)
	}

	clamped, err := svc.IssueCode(context.Background(), store.ID, "owner-1", 10000*time.Hour)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if !clamped.ExpiresAt.Equal(base.Add(maxInviteTTL)) {
		t.Fatalf("expected clamped TTL, got expiry %v", clamped.ExpiresAt)
	}
}

func TestIssueCodeRequiresOwner(t *testing.T) {
	svc, repo := newTestService(t)
	store := mustCreateStore(t, svc, "owner-1", "Oficina")

	now := time.Now().UTC()
	if err := repo.CreateMembership(context.Background(), &Membership{
		ID: "mem-mgr", LojaID: store.ID, UsuarioID: "mgr-1",
		Role: RoleManager, Ativo: true, CreatedAt: now, DataAdmissao: now,
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}

	if _, err := svc.IssueCode(context.Background(), store.ID, "mgr-1", 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for manager, got %v", err)
	}
	if _, err := svc.IssueCode(context.Background(), store.ID, "stranger", 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
}

func TestRedeemCreatesEmployeeMembership(t *testing.T) {
	svc, repo := newTestService(t)
	store := mustCreateStore(t, svc, "owner-1", "Barbearia")

	invite, err := svc.IssueCode(context.Background(), store.ID, "owner-1", 0)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	member, err := svc.Redeem(context.Background(), "  "+strings.ToLower(invite.Code)+" ", Redeemer{ID: "emp-1", Nome: "Carlos"})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if member.Role != RoleEmployee {
		t.Fatalf("expected funcionario, got %q", member.Role)
	}
	if member.LojaID != store.ID {
		t.Fatalf("membership bound to wrong store: %s", member.LojaID)
	}

	stored, err := repo.FindInviteCode(context.Background(), invite.Code)
	if err != nil {
		t.Fatalf("FindInviteCode: %v", err)
	}
	if !stored.Used || stored.UsedBy != "emp-1" {
		t.Fatalf("code not marked used: %+v", stored)
	}
}

func TestRedeemIsSingleUse(t *testing.T) {
	svc, _ := newTestService(t)
	store := mustCreateStore(t, svc, "owner-1", "Mercearia")

	invite, err := svc.IssueCode(context.Background(), store.ID, "owner-1", 0)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	const racers = 8
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		alreadyUsed int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Redeem(context.Background(), invite.Code, Redeemer{ID: "racer-" + strings.Repeat("x", n+1)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyUsed):
				alreadyUsed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}
	if alreadyUsed != racers-1 {
		t.Fatalf("expected %d losers, got %d", racers-1, alreadyUsed)
	}
}

func TestRedeemExpiredCode(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc, _ := newTestService(t, WithClock(func() time.Time { return now }))
	store := mustCreateStore(t, svc, "owner-1", "Quitanda")

	invite, err := svc.IssueCode(context.Background(), store.ID, "owner-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	now = base.Add(2 * time.Hour)
	if _, err := svc.Redeem(context.Background(), invite.Code, Redeemer{ID: "emp-1"}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	// An expired code is never consumed; the error is stable across retries.
	if _, err := svc.Redeem(context.Background(), invite.Code, Redeemer{ID: "emp-1"}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired on retry, got %v", err)
	}
}

func TestRedeemValidation(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Redeem(context.Background(), "  ", Redeemer{ID: "emp-1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty code, got %v", err)
	}
	if _, err := svc.Redeem(context.Background(), "ABCD2345", Redeemer{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty redeemer, got %v", err)
	}
	if _, err := svc.Redeem(context.Background(), "ABCD2345", Redeemer{ID: "emp-1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown code, got %v", err)
	}
}

func TestRedeemRejectsExistingMember(t *testing.T) {
	svc, _ := newTestService(t)
	store := mustCreateStore(t, svc, "owner-1", "Acougue")

	first, err := svc.IssueCode(context.Background(), store.ID, "owner-1", 0)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if _, err := svc.Redeem(context.Background(), first.Code, Redeemer{ID: "emp-1"}); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	second, err := svc.IssueCode(context.Background(), store.ID, "owner-1", 0)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if _, err := svc.Redeem(context.Background(), second.Code, Redeemer{ID: "emp-1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for existing member, got %v", err)
	}
}

func TestOwnerPrecedenceOverMembershipRow(t *testing.T) {
	svc, repo := newTestService(t)
	store := mustCreateStore(t, svc, "owner-1", "Papelaria")

	// Corrupt the denormalized row: owner listed as inactive funcionario.
	now := time.Now().UTC()
	if err := repo.DeleteMembership(context.Background(), store.ID, "owner-1"); err != nil {
		t.Fatalf("DeleteMembership: %v", err)
	}
	if err := repo.CreateMembership(context.Background(), &Membership{
		ID: "mem-bad", LojaID: store.ID, UsuarioID: "owner-1",
		Role: RoleEmployee, Ativo: false, CreatedAt: now, DataAdmissao: now,
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}

	role, err := svc.ResolveRole(context.Background(), store.ID, "owner-1")
	if err != nil {
		t.Fatalf("ResolveRole: %v", err)
	}
	if role != RoleOwner {
		t.Fatalf("owner reference must win over membership row, got %q", role)
	}
}

func TestInactiveMembershipResolvesToNone(t *testing.T) {
	svc, repo := newTestService(t)
	store := mustCreateStore(t, svc, "owner-1", "Floricultura")

	now := time.Now().UTC()
	if err := repo.CreateMembership(context.Background(), &Membership{
		ID: "mem-1", LojaID: store.ID, UsuarioID: "emp-1",
		Role: RoleEmployee, Ativo: false, CreatedAt: now, DataAdmissao: now,
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}

	role, err := svc.ResolveRole(context.Background(), store.ID, "emp-1")
	if err != nil {
		t.Fatalf("ResolveRole: %v", err)
	}
	if role != RoleNone {
		t.Fatalf("expected RoleNone for inactive membership, got %q", role)
	}
}

// conflictOnceRepo forces one uniqueness collision on invite insertion.
type conflictOnceRepo struct {
	Repository
	mu    sync.Mutex
	fired bool
}

func (r *conflictOnceRepo) CreateInviteCode(ctx context.Context, c *InviteCode) error {
	r.mu.Lock()
	fired := r.fired
	r.fired = true
	r.mu.Unlock()
	if !fired {
		return ErrConflict
	}
	return r.Repository.CreateInviteCode(ctx, c)
}

func TestIssueCodeRetriesOnceOnCollision(t *testing.T) {
	repo := &conflictOnceRepo{Repository: NewInMemory()}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	store, err := svc.CreateStore(context.Background(), "owner-1", NewStore{Nome: "Livraria"}, DisplayAttrs{})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}

	invite, err := svc.IssueCode(context.Background(), store.ID, "owner-1", 0)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if invite.Code == "" {
		t.Fatalf("expected a code after retry")
	}
}

func TestIssueCodeGivesUpAfterSecondCollision(t *testing.T) {
	repo := &alwaysConflictRepo{Repository: NewInMemory()}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	store, err := svc.CreateStore(context.Background(), "owner-1", NewStore{Nome: "Sebo"}, DisplayAttrs{})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}

	if _, err := svc.IssueCode(context.Background(), store.ID, "owner-1", 0); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict after exhausted retry, got %v", err)
	}
}

type alwaysConflictRepo struct {
	Repository
}

func (r *alwaysConflictRepo) CreateInviteCode(ctx context.Context, c *InviteCode) error {
	return ErrConflict
}

func TestRemoveEmployee(t *testing.T) {
	dir := identity.NewStatic(identity.Principal{ID: "emp-1"})
	svc, repo := newTestService(t, WithIdentity(dir))
	store := mustCreateStore(t, svc, "owner-1", "Lanchonete")

	invite, err := svc.IssueCode(context.Background(), store.ID, "owner-1", 0)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if _, err := svc.Redeem(context.Background(), invite.Code, Redeemer{ID: "emp-1"}); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	repo.PutCredential(context.Background(), &Credential{ID: "cred-1", LojaID: store.ID, AuthUserID: "emp-1"})

	if err := svc.RemoveEmployee(context.Background(), "cred-1", "owner-1"); err != nil {
		t.Fatalf("RemoveEmployee: %v", err)
	}

	if _, err := repo.GetMembership(context.Background(), store.ID, "emp-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("membership should be deleted, got %v", err)
	}
	if _, err := repo.GetCredential(context.Background(), "cred-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("credential should be deleted, got %v", err)
	}
	if deleted := dir.Deleted(); len(deleted) != 1 || deleted[0] != "emp-1" {
		t.Fatalf("identity record should be deleted, got %v", deleted)
	}
}

func TestRemoveEmployeeToleratesIdentityFailure(t *testing.T) {
	dir := identity.NewStatic(identity.Principal{ID: "emp-1"})
	dir.DeleteErr = errors.New("directory down")
	svc, repo := newTestService(t, WithIdentity(dir))
	store := mustCreateStore(t, svc, "owner-1", "Farmacia")

	repo.PutCredential(context.Background(), &Credential{ID: "cred-1", LojaID: store.ID, AuthUserID: "emp-1"})

	// Identity deletion failing must not block revoking store access.
	if err := svc.RemoveEmployee(context.Background(), "cred-1", "owner-1"); err != nil {
		t.Fatalf("RemoveEmployee: %v", err)
	}
	if _, err := repo.GetCredential(context.Background(), "cred-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("credential should be deleted, got %v", err)
	}
}

type failingCredentialRepo struct {
	Repository
}

func (r *failingCredentialRepo) DeleteCredential(ctx context.Context, id string) error {
	return errors.New("storage unavailable")
}

func TestRemoveEmployeeCredentialFailureIsFatal(t *testing.T) {
	dir := identity.NewStatic(identity.Principal{ID: "emp-1"})
	inner := NewInMemory()
	svc, err := NewService(&failingCredentialRepo{Repository: inner}, WithIdentity(dir))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	store, err := svc.CreateStore(context.Background(), "owner-1", NewStore{Nome: "Pet Shop"}, DisplayAttrs{})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	inner.PutCredential(context.Background(), &Credential{ID: "cred-1", LojaID: store.ID, AuthUserID: "emp-1"})

	if err := svc.RemoveEmployee(context.Background(), "cred-1", "owner-1"); err == nil {
		t.Fatalf("expected credential deletion failure to surface")
	}
	// Later steps never ran.
	if deleted := dir.Deleted(); len(deleted) != 0 {
		t.Fatalf("identity deletion should not have run, got %v", deleted)
	}
}

func TestRemoveEmployeeRequiresOwner(t *testing.T) {
	svc, repo := newTestService(t)
	store := mustCreateStore(t, svc, "owner-1", "Sorveteria")
	repo.PutCredential(context.Background(), &Credential{ID: "cred-1", LojaID: store.ID, AuthUserID: "emp-1"})

	if err := svc.RemoveEmployee(context.Background(), "cred-1", "stranger"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.RemoveEmployee(context.Background(), "missing", "owner-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneInviteCodes(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc, _ := newTestService(t, WithClock(func() time.Time { return now }))
	store := mustCreateStore(t, svc, "owner-1", "Bazar")

	expired, err := svc.IssueCode(context.Background(), store.ID, "owner-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	used, err := svc.IssueCode(context.Background(), store.ID, "owner-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if _, err := svc.Redeem(context.Background(), used.Code, Redeemer{ID: "emp-1"}); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	live, err := svc.IssueCode(context.Background(), store.ID, "owner-1", 48*time.Hour)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	now = base.Add(2 * time.Hour)
	pruned, err := svc.PruneInviteCodes(context.Background())
	if err != nil {
		t.Fatalf("PruneInviteCodes: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned code, got %d", pruned)
	}

	if _, err := svc.Redeem(context.Background(), expired.Code, Redeemer{ID: "emp-2"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired code should be gone, got %v", err)
	}
	if _, err := svc.Redeem(context.Background(), live.Code, Redeemer{ID: "emp-2"}); err != nil {
		t.Fatalf("live code should still redeem, got %v", err)
	}
}

func TestRandomCodeUsesAlphabetUniformly(t *testing.T) {
	seen := make(map[rune]bool)
	for i := 0; i < 200; i++ {
		code, err := randomCode()
		if err != nil {
			t.Fatalf("randomCode: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("unexpected length: %q", code)
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("symbol %q outside alphabet", c)
			}
			seen[c] = true
		}
	}
	// 1600 draws over 31 symbols: every symbol should appear.
	if len(seen) != len(codeAlphabet) {
		t.Fatalf("expected all %d symbols to occur, saw %d", len(codeAlphabet), len(seen))
	}
}
