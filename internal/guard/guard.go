// Package guard implements the client-side navigation gate: it suspends
// routing decisions until the caller's role for the active store is known,
// then re-evaluates page access on every path change.
package guard

import (
	"context"
	"sync"

	"lojinha.app/internal/tenant"
)

// State is the resolution phase of the guard.
type State int

const (
	// Resolving means role and store context are not loaded yet; all
	// navigation decisions are suspended.
	Resolving State = iota
	// Resolved means the role is known and decisions are live.
	Resolved
)

// Outcome is a navigation verdict.
type Outcome int

const (
	// Pending: still resolving, keep showing the loading indicator.
	Pending Outcome = iota
	// Allow: navigation may proceed.
	Allow
	// Redirect: role does not grant the page; go to RedirectTo instead.
	Redirect
)

// Decision is the result of evaluating one path.
type Decision struct {
	Outcome    Outcome
	RedirectTo string
}

// RoleResolver loads the principal's role for a store.
type RoleResolver func(ctx context.Context, storeID, principalID string) (tenant.Role, error)

// Guard gates navigation for a single client session. It never blocks other
// sessions; suspension is cooperative within this one.
type Guard struct {
	mu          sync.Mutex
	resolver    RoleResolver
	principalID string
	storeID     string
	state       State
	role        tenant.Role
}

// New creates a guard in the Resolving state.
func New(resolver RoleResolver) *Guard {
	return &Guard{resolver: resolver, state: Resolving}
}

// SetContext switches the active principal and store. Any change drops the
// previous decision and forces re-resolution: a stale Resolved role is never
// carried across a store switch.
func (g *Guard) SetContext(principalID, storeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.principalID == principalID && g.storeID == storeID && g.state == Resolved {
		return
	}
	g.principalID = principalID
	g.storeID = storeID
	g.state = Resolving
	g.role = tenant.RoleNone
}

// Resolve loads the role for the current context and moves to Resolved. A
// resolver failure leaves the guard Resolving so decisions stay suspended.
func (g *Guard) Resolve(ctx context.Context) error {
	g.mu.Lock()
	principalID, storeID := g.principalID, g.storeID
	g.mu.Unlock()

	var role tenant.Role
	if principalID != "" && storeID != "" {
		var err error
		role, err = g.resolver(ctx, storeID, principalID)
		if err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// Context changed while resolving; the result is stale.
	if g.principalID != principalID || g.storeID != storeID {
		return nil
	}
	g.role = role
	g.state = Resolved
	return nil
}

// State reports the current resolution phase.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Role returns the resolved role; RoleNone while Resolving.
func (g *Guard) Role() tenant.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Resolved {
		return tenant.RoleNone
	}
	return g.role
}

// Decide evaluates navigation to the given path. While Resolving every
// decision is Pending. Once Resolved, a denied path redirects to the default
// operational page rather than erroring.
func (g *Guard) Decide(path string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Resolved {
		return Decision{Outcome: Pending}
	}
	if tenant.CanAccess(g.role, path) {
		return Decision{Outcome: Allow}
	}
	return Decision{Outcome: Redirect, RedirectTo: tenant.DefaultPage}
}
