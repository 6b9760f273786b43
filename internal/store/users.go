package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"castwatch/internal/model"
)

const userColumns = `id, wallet_address, attestation_count, created_at, updated_at`

// GetOrCreateUser returns the user row for a wallet address, creating it on
// first sight. Addresses are stored lowercase.
func (s *Store) GetOrCreateUser(ctx context.Context, walletAddress string) (model.User, error) {
	return getOrCreateUser(ctx, s.pool, walletAddress)
}

// GetUserByAddress looks a user up by wallet address.
func (s *Store) GetUserByAddress(ctx context.Context, walletAddress string) (model.User, bool, error) {
	var u model.User
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE wallet_address = $1`,
		strings.ToLower(walletAddress))
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, false, nil
		}
		return model.User{}, false, err
	}
	return u, true, nil
}

func getOrCreateUser(ctx context.Context, q querier, walletAddress string) (model.User, error) {
	addr := strings.ToLower(walletAddress)

	var u model.User
	row := q.QueryRow(ctx, `
		INSERT INTO users (wallet_address) VALUES ($1)
		ON CONFLICT (wallet_address) DO NOTHING
		RETURNING `+userColumns, addr)
	err := scanUser(row, &u)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, err
	}

	// Conflict path: the row already existed, fetch it.
	row = q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE wallet_address = $1`, addr)
	if err := scanUser(row, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// refreshAttestationCount recomputes a user's denormalized count from the
// attestations table, so a duplicate-skipped insert still heals the counter.
func refreshAttestationCount(ctx context.Context, q querier, walletAddress string) error {
	_, err := q.Exec(ctx, `
		UPDATE users
		SET attestation_count = (
			SELECT COUNT(*) FROM together_attestations
			WHERE address_1 = $1 OR address_2 = $1
		), updated_at = now()
		WHERE wallet_address = $1
	`, strings.ToLower(walletAddress))
	return err
}

func scanUser(row pgx.Row, u *model.User) error {
	return row.Scan(&u.ID, &u.WalletAddress, &u.AttestationCount, &u.CreatedAt, &u.UpdatedAt)
}
