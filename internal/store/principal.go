package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/storefront/internal/model"
)

type PrincipalStore struct {
	db *sql.DB
}

func NewPrincipalStore(db *sql.DB) *PrincipalStore {
	return &PrincipalStore{db: db}
}

func scanPrincipal(scanner interface{ Scan(...any) error }) (*model.Principal, error) {
	var p model.Principal
	var name sql.NullString
	err := scanner.Scan(&p.ID, &p.PublicID, &p.Email, &name, &p.Role, &p.Verified, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if name.Valid {
		p.Name = &name.String
	}
	return &p, nil
}

const principalCols = `id, public_id, email, name, role, verified, created_at, updated_at`

// Create inserts a principal. Email must already be normalized.
func (s *PrincipalStore) Create(ctx context.Context, email string, role model.Role, verified bool) (*model.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO principals (public_id, email, role, verified) VALUES (?, ?, ?, ?) RETURNING `+principalCols,
		uuid.NewString(), email, role, verified,
	)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, fmt.Errorf("insert principal: %w", err)
	}
	return p, nil
}

// GetOrCreateCustomer returns the principal for email, creating a verified
// customer if none exists. An existing principal keeps its role and is
// marked verified.
func (s *PrincipalStore) GetOrCreateCustomer(ctx context.Context, email string) (*model.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO principals (public_id, email, role, verified) VALUES (?, ?, ?, 1)
		 ON CONFLICT(email) DO UPDATE SET verified = 1
		 RETURNING `+principalCols,
		uuid.NewString(), email, model.RoleCustomer,
	)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}
	return p, nil
}

// EnsureAdmin creates the admin principal on first call and returns the same
// row afterwards. A pre-existing principal with this email is promoted.
func (s *PrincipalStore) EnsureAdmin(ctx context.Context, email string) (*model.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO principals (public_id, email, role, verified) VALUES (?, ?, ?, 1)
		 ON CONFLICT(email) DO UPDATE SET role = excluded.role, verified = 1
		 RETURNING `+principalCols,
		uuid.NewString(), email, model.RoleAdmin,
	)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, fmt.Errorf("upsert admin: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) GetByID(ctx context.Context, id int64) (*model.Principal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+principalCols+` FROM principals WHERE id = ?`, id)
	p, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) GetByPublicID(ctx context.Context, publicID string) (*model.Principal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+principalCols+` FROM principals WHERE public_id = ?`, publicID)
	p, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get principal by public id: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) GetByEmail(ctx context.Context, email string) (*model.Principal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+principalCols+` FROM principals WHERE email = ?`, email)
	p, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get principal by email: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) List(ctx context.Context) ([]model.Principal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+principalCols+` FROM principals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var principals []model.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		principals = append(principals, *p)
	}
	return principals, rows.Err()
}

// SetRole changes a principal's role. Returns nil if no principal matches.
func (s *PrincipalStore) SetRole(ctx context.Context, publicID string, role model.Role) (*model.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE principals SET role = ? WHERE public_id = ? RETURNING `+principalCols,
		role, publicID,
	)
	p, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}
	return p, nil
}
