package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lojinha.app/internal/tenant"
)

var _ tenant.Repository = (*Store)(nil)

func (s *Store) CreateStore(ctx context.Context, loja *tenant.Store) error {
	_, err := s.db.ExecContext(ctx, `
		insert into lojas (id, nome, cnpj, endereco, telefone, dono_id, created_at, updated_at)
		values ($1, $2, nullif($3,''), nullif($4,''), nullif($5,''), $6, $7, $8)
	`, loja.ID, loja.Nome, loja.CNPJ, loja.Endereco, loja.Telefone, loja.DonoID, loja.CreatedAt, loja.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return tenant.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetStore(ctx context.Context, id string) (*tenant.Store, error) {
	var (
		loja                     tenant.Store
		cnpj, endereco, telefone sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, nome, cnpj, endereco, telefone, dono_id, created_at, updated_at
		from lojas where id = $1
	`, id).Scan(&loja.ID, &loja.Nome, &cnpj, &endereco, &telefone, &loja.DonoID, &loja.CreatedAt, &loja.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	loja.CNPJ = cnpj.String
	loja.Endereco = endereco.String
	loja.Telefone = telefone.String
	return &loja, nil
}

func (s *Store) UpdateStore(ctx context.Context, id string, upd tenant.StoreUpdate) (*tenant.Store, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = nullif($%d,'')", column, len(args)))
	}
	if upd.Nome != nil {
		args = append(args, *upd.Nome)
		sets = append(sets, fmt.Sprintf("nome = $%d", len(args)))
	}
	add("cnpj", upd.CNPJ)
	add("endereco", upd.Endereco)
	add("telefone", upd.Telefone)

	query := fmt.Sprintf(`
		update lojas set %s where id = $1
		returning id, nome, cnpj, endereco, telefone, dono_id, created_at, updated_at
	`, strings.Join(sets, ", "))

	var (
		loja                     tenant.Store
		cnpj, endereco, telefone sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&loja.ID, &loja.Nome, &cnpj, &endereco, &telefone, &loja.DonoID, &loja.CreatedAt, &loja.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	loja.CNPJ = cnpj.String
	loja.Endereco = endereco.String
	loja.Telefone = telefone.String
	return &loja, nil
}

func (s *Store) CreateMembership(ctx context.Context, m *tenant.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into lojas_usuarios (id, loja_id, usuario_id, nivel_acesso, nome, email, cargo, data_admissao, ativo, created_at)
		values ($1, $2, $3, $4, nullif($5,''), nullif($6,''), nullif($7,''), $8, $9, $10)
	`, m.ID, m.LojaID, m.UsuarioID, string(m.Role), m.Nome, m.Email, m.Cargo, m.DataAdmissao, m.Ativo, m.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return tenant.ErrConflict
			case pgErrForeignKeyViolation:
				return tenant.ErrNotFound
			}
		}
		return err
	}
	return nil
}

// EnsureOwnerMembership inserts the owner row, leaving any existing row for
// the pair untouched: store creation can be retried without duplicating or
// downgrading the owner membership.
func (s *Store) EnsureOwnerMembership(ctx context.Context, m *tenant.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into lojas_usuarios (id, loja_id, usuario_id, nivel_acesso, nome, email, cargo, data_admissao, ativo, created_at)
		values ($1, $2, $3, $4, nullif($5,''), nullif($6,''), nullif($7,''), $8, $9, $10)
		on conflict (loja_id, usuario_id) do nothing
	`, m.ID, m.LojaID, m.UsuarioID, string(m.Role), m.Nome, m.Email, m.Cargo, m.DataAdmissao, m.Ativo, m.CreatedAt)
	return err
}

func (s *Store) GetMembership(ctx context.Context, lojaID, usuarioID string) (*tenant.Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx, `
		select id, loja_id, usuario_id, nivel_acesso, nome, email, cargo, data_admissao, ativo, created_at
		from lojas_usuarios where loja_id = $1 and usuario_id = $2
	`, lojaID, usuarioID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	return m, err
}

func (s *Store) ListMemberships(ctx context.Context, lojaID string) ([]*tenant.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, loja_id, usuario_id, nivel_acesso, nome, email, cargo, data_admissao, ativo, created_at
		from lojas_usuarios where loja_id = $1
		order by created_at asc
	`, lojaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*tenant.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteMembership(ctx context.Context, lojaID, usuarioID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from lojas_usuarios where loja_id = $1 and usuario_id = $2
	`, lojaID, usuarioID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (s *Store) CreateInviteCode(ctx context.Context, c *tenant.InviteCode) error {
	_, err := s.db.ExecContext(ctx, `
		insert into loja_access_codes (id, loja_id, code, created_by, created_at, expires_at, used)
		values ($1, $2, $3, $4, $5, $6, false)
	`, c.ID, c.LojaID, c.Code, c.CreatedBy, c.CreatedAt, c.ExpiresAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: duplicate code", tenant.ErrConflict)
			case pgErrForeignKeyViolation:
				return tenant.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) FindInviteCode(ctx context.Context, code string) (*tenant.InviteCode, error) {
	var (
		c      tenant.InviteCode
		usedBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, loja_id, code, created_by, created_at, expires_at, used, used_by
		from loja_access_codes where code = $1
	`, code).Scan(&c.ID, &c.LojaID, &c.Code, &c.CreatedBy, &c.CreatedAt, &c.ExpiresAt, &c.Used, &usedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.UsedBy = usedBy.String
	return &c, nil
}

// ClaimInviteCode performs the single conditional write that gates
// redemption. The used flag is never read-then-written: the predicate on
// used=false makes the update succeed for exactly one concurrent caller.
func (s *Store) ClaimInviteCode(ctx context.Context, id, usedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update loja_access_codes set used = true, used_by = $2
		where id = $1 and used = false
	`, id, usedBy)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *Store) PruneInviteCodes(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from loja_access_codes where used = false and expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) GetCredential(ctx context.Context, id string) (*tenant.Credential, error) {
	var c tenant.Credential
	err := s.db.QueryRowContext(ctx, `
		select id, loja_id, auth_user_id, created_at
		from lojas_credenciais_funcionarios where id = $1
	`, id).Scan(&c.ID, &c.LojaID, &c.AuthUserID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from lojas_credenciais_funcionarios where id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*tenant.Membership, error) {
	var (
		m                  tenant.Membership
		role               string
		nome, email, cargo sql.NullString
	)
	if err := row.Scan(&m.ID, &m.LojaID, &m.UsuarioID, &role, &nome, &email, &cargo, &m.DataAdmissao, &m.Ativo, &m.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := tenant.ParseRole(role)
	if err != nil {
		// Unknown stored role resolves to no access rather than failing the
		// read; the evaluator treats RoleNone as deny-all.
		parsed = tenant.RoleNone
	}
	m.Role = parsed
	m.Nome = nome.String
	m.Email = email.String
	m.Cargo = cargo.String
	return &m, nil
}
