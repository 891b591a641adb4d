package tenant

import "strings"

// DefaultPage is where the route guard sends principals whose role does not
// grant the requested page.
const DefaultPage = "/pos"

// employeePages is the fixed allow-list of operational page prefixes an
// employee may reach.
var employeePages = []string{
	"/pos",
	"/estoque",
	"/caixa",
	"/servicos",
	"/clientes",
	"/conta",
}

// EffectiveRole computes the role a principal holds for a store. The store's
// owner reference always wins: a stray membership row with a different role
// for the same principal never overrides it. Inactive or invalid memberships
// resolve to RoleNone.
func EffectiveRole(ownerID, principalID string, m *Membership) Role {
	if principalID == "" {
		return RoleNone
	}
	if principalID == ownerID {
		return RoleOwner
	}
	if m == nil || !m.Ativo || !m.Role.Valid() {
		return RoleNone
	}
	return m.Role
}

// CanAccess reports whether a role may reach the given resource path. Owner
// passes everything. Manager currently has the same breadth as owner: no
// page in the policy is restricted to owner only. Employee is limited to the
// operational allow-list; RoleNone reaches nothing.
func CanAccess(role Role, resourcePath string) bool {
	switch role {
	case RoleOwner, RoleManager:
		return true
	case RoleEmployee:
		for _, p := range employeePages {
			if strings.HasPrefix(resourcePath, p) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
