package tenant

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of access levels a principal can hold inside a
// store. Values match the nivel_acesso column; anything else fails parsing
// so an unexpected database value can never widen access.
type Role string

const (
	RoleNone     Role = ""
	RoleOwner    Role = "dono"
	RoleManager  Role = "gerente"
	RoleEmployee Role = "funcionario"
)

// ParseRole maps a stored nivel_acesso value onto the closed enum.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleManager:
		return RoleManager, nil
	case RoleEmployee:
		return RoleEmployee, nil
	default:
		return RoleNone, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}

// Valid reports whether the role is one of the three known levels.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleManager || r == RoleEmployee
}

// Store is a tenant: the unit of data isolation. DonoID references the
// owning principal and is immutable after creation.
type Store struct {
	ID        string    `json:"id"`
	Nome      string    `json:"nome"`
	CNPJ      string    `json:"cnpj,omitempty"`
	Endereco  string    `json:"endereco,omitempty"`
	Telefone  string    `json:"telefone,omitempty"`
	DonoID    string    `json:"dono_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoreUpdate carries the mutable store fields. Nil means keep.
type StoreUpdate struct {
	Nome     *string
	CNPJ     *string
	Endereco *string
	Telefone *string
}

// Membership links a principal to a store with a role plus denormalized
// display attributes. At most one row exists per (loja, usuario) pair.
type Membership struct {
	ID           string    `json:"id"`
	LojaID       string    `json:"loja_id"`
	UsuarioID    string    `json:"usuario_id"`
	Role         Role      `json:"nivel_acesso"`
	Nome         string    `json:"nome,omitempty"`
	Email        string    `json:"email,omitempty"`
	Cargo        string    `json:"cargo,omitempty"`
	DataAdmissao time.Time `json:"data_admissao"`
	Ativo        bool      `json:"ativo"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayAttrs are the human-facing membership fields captured at creation.
type DisplayAttrs struct {
	Nome         string
	Email        string
	Cargo        string
	DataAdmissao time.Time
}

// InviteCode is a single-use, time-bounded token granting employee-level
// membership to whoever redeems it first. Rows are kept after use for audit.
type InviteCode struct {
	ID        string    `json:"id"`
	LojaID    string    `json:"loja_id"`
	Code      string    `json:"code"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	UsedBy    string    `json:"used_by,omitempty"`
}

// Credential binds a membership to an identity record in the external
// directory. Removing an employee deletes the credential and membership as
// one logical unit.
type Credential struct {
	ID         string    `json:"id"`
	LojaID     string    `json:"loja_id"`
	AuthUserID string    `json:"auth_user_id"`
	CreatedAt  time.Time `json:"created_at"`
}
