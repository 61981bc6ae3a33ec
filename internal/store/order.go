package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/storefront/internal/model"
)

// OrderStore exposes the slice of the orders table that sign-in links need.
// Order contents belong to the ordering subsystem.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func scanOrder(scanner interface{ Scan(...any) error }) (*model.Order, error) {
	var o model.Order
	err := scanner.Scan(&o.ID, &o.PublicID, &o.PrincipalID, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

const orderCols = `id, public_id, principal_id, created_at`

func (s *OrderStore) Create(ctx context.Context, principalID int64) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO orders (public_id, principal_id) VALUES (?, ?) RETURNING `+orderCols,
		uuid.NewString(), principalID,
	)
	o, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (s *OrderStore) GetByPublicID(ctx context.Context, publicID string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE public_id = ?`, publicID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order by public id: %w", err)
	}
	return o, nil
}
