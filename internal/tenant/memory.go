package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemory implements Repository with in-process concurrency safety. Used by
// tests and local development; production uses the Postgres store.
type InMemory struct {
	mu          sync.Mutex
	stores      map[string]*Store
	members     map[string]*Membership // key: lojaID + "/" + usuarioID
	invites     map[string]*InviteCode // key: invite ID
	inviteCodes map[string]string      // code -> invite ID
	credentials map[string]*Credential
}

var _ Repository = (*InMemory)(nil)

// NewInMemory creates an empty repository.
func NewInMemory() *InMemory {
	return &InMemory{
		stores:      make(map[string]*Store),
		members:     make(map[string]*Membership),
		invites:     make(map[string]*InviteCode),
		inviteCodes: make(map[string]string),
		credentials: make(map[string]*Credential),
	}
}

func memberKey(lojaID, usuarioID string) string { return lojaID + "/" + usuarioID }

func (r *InMemory) CreateStore(ctx context.Context, s *Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[s.ID]; ok {
		return ErrConflict
	}
	cp := *s
	r.stores[s.ID] = &cp
	return nil
}

func (r *InMemory) GetStore(ctx context.Context, id string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *InMemory) UpdateStore(ctx context.Context, id string, upd StoreUpdate) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Nome != nil {
		s.Nome = *upd.Nome
	}
	if upd.CNPJ != nil {
		s.CNPJ = *upd.CNPJ
	}
	if upd.Endereco != nil {
		s.Endereco = *upd.Endereco
	}
	if upd.Telefone != nil {
		s.Telefone = *upd.Telefone
	}
	s.UpdatedAt = time.Now().UTC()
	cp := *s
	return &cp, nil
}

func (r *InMemory) CreateMembership(ctx context.Context, m *Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memberKey(m.LojaID, m.UsuarioID)
	if _, ok := r.members[key]; ok {
		return ErrConflict
	}
	cp := *m
	r.members[key] = &cp
	return nil
}

func (r *InMemory) EnsureOwnerMembership(ctx context.Context, m *Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memberKey(m.LojaID, m.UsuarioID)
	if _, ok := r.members[key]; ok {
		return nil
	}
	cp := *m
	r.members[key] = &cp
	return nil
}

func (r *InMemory) GetMembership(ctx context.Context, lojaID, usuarioID string) (*Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[memberKey(lojaID, usuarioID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *InMemory) ListMemberships(ctx context.Context, lojaID string) ([]*Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Membership
	for _, m := range r.members {
		if m.LojaID == lojaID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *InMemory) DeleteMembership(ctx context.Context, lojaID, usuarioID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memberKey(lojaID, usuarioID)
	if _, ok := r.members[key]; !ok {
		return ErrNotFound
	}
	delete(r.members, key)
	return nil
}

func (r *InMemory) CreateInviteCode(ctx context.Context, c *InviteCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inviteCodes[c.Code]; ok {
		return fmt.Errorf("%w: duplicate code", ErrConflict)
	}
	cp := *c
	r.invites[c.ID] = &cp
	r.inviteCodes[c.Code] = c.ID
	return nil
}

func (r *InMemory) FindInviteCode(ctx context.Context, code string) (*InviteCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.inviteCodes[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.invites[id]
	return &cp, nil
}

func (r *InMemory) ClaimInviteCode(ctx context.Context, id, usedBy string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invites[id]
	if !ok {
		return false, ErrNotFound
	}
	if inv.Used {
		return false, nil
	}
	inv.Used = true
	inv.UsedBy = usedBy
	return true, nil
}

func (r *InMemory) PruneInviteCodes(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pruned int64
	for id, inv := range r.invites {
		if inv.Used || inv.ExpiresAt.IsZero() || !inv.ExpiresAt.Before(cutoff) {
			continue
		}
		delete(r.inviteCodes, inv.Code)
		delete(r.invites, id)
		pruned++
	}
	return pruned, nil
}

func (r *InMemory) GetCredential(ctx context.Context, id string) (*Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemory) DeleteCredential(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.credentials[id]; !ok {
		return ErrNotFound
	}
	delete(r.credentials, id)
	return nil
}

// PutCredential seeds a credential row. Test and seed-tool helper; the
// credential lifecycle otherwise belongs to employee onboarding flows
// outside this core.
func (r *InMemory) PutCredential(ctx context.Context, c *Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.credentials[c.ID] = &cp
}
