package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dukerupert/storefront/internal/model"
)

// MagicLinkTTL is how long a one-time login link stays redeemable.
const MagicLinkTTL = 15 * time.Minute

type MagicLinkStore struct {
	db *sql.DB
}

func NewMagicLinkStore(db *sql.DB) *MagicLinkStore {
	return &MagicLinkStore{db: db}
}

func scanMagicLink(scanner interface{ Scan(...any) error }) (*model.MagicLink, error) {
	var ml model.MagicLink
	var usedAt sql.NullTime

	err := scanner.Scan(&ml.ID, &ml.TokenHash, &ml.Email, &ml.IssuedAt, &ml.ExpiresAt, &usedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		ml.UsedAt = &usedAt.Time
	}
	return &ml, nil
}

const magicLinkCols = `id, token_hash, email, issued_at, expires_at, used_at`

// HashToken returns the digest under which a raw link token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateToken returns 32 random bytes, hex-encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create issues a new link for email valid from now until now+MagicLinkTTL
// and returns the raw token alongside the stored row. Earlier pending links
// for the same email are retired in the same transaction.
func (s *MagicLinkStore) Create(ctx context.Context, email string, now time.Time) (string, *model.MagicLink, error) {
	token, err := generateToken()
	if err != nil {
		return "", nil, err
	}
	now = now.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE magic_links SET used_at = ? WHERE email = ? AND used_at IS NULL`,
		now, email,
	); err != nil {
		return "", nil, fmt.Errorf("retire previous links: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`INSERT INTO magic_links (token_hash, email, issued_at, expires_at) VALUES (?, ?, ?, ?) RETURNING `+magicLinkCols,
		HashToken(token), email, now, now.Add(MagicLinkTTL),
	)
	ml, err := scanMagicLink(row)
	if err != nil {
		return "", nil, fmt.Errorf("insert magic link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("commit: %w", err)
	}
	return token, ml, nil
}

// GetByToken returns the link for a raw token in any state, or nil if no
// such link was ever issued.
func (s *MagicLinkStore) GetByToken(ctx context.Context, token string) (*model.MagicLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+magicLinkCols+` FROM magic_links WHERE token_hash = ?`, HashToken(token))
	ml, err := scanMagicLink(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get magic link by token: %w", err)
	}
	return ml, nil
}

// Claim marks the link used if and only if it is still unused. It reports
// whether this call was the one that consumed it.
func (s *MagicLinkStore) Claim(ctx context.Context, id int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE magic_links SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		now.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("claim magic link: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// DeleteStale removes links that were used or have expired as of now.
func (s *MagicLinkStore) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM magic_links WHERE used_at IS NOT NULL OR expires_at <= ?`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale magic links: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
