package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"castwatch/internal/model"
)

// UpsertPendingConnection records a one-directional together request. A
// repeat request from the same user for the same partner just pushes the
// expiry forward.
func (s *Store) UpsertPendingConnection(ctx context.Context, fromUserID, toUserID int32, expiresAt time.Time) (model.PendingConnection, error) {
	var p model.PendingConnection
	row := s.pool.QueryRow(ctx, `
		INSERT INTO pending_connections (id, from_user_id, to_user_id, created_at, expires_at)
		VALUES ($1, $2, $3, now(), $4)
		ON CONFLICT (from_user_id, to_user_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
		RETURNING id, from_user_id, to_user_id, created_at, expires_at
	`, uuid.NewString(), fromUserID, toUserID, expiresAt)
	if err := row.Scan(&p.ID, &p.FromUserID, &p.ToUserID, &p.CreatedAt, &p.ExpiresAt); err != nil {
		return model.PendingConnection{}, err
	}
	return p, nil
}

// HasPendingBetween reports whether an unexpired request from one user to
// another exists.
func (s *Store) HasPendingBetween(ctx context.Context, fromUserID, toUserID int32) (bool, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pending_connections
			WHERE from_user_id = $1 AND to_user_id = $2 AND expires_at > now()
		)
	`, fromUserID, toUserID)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// DeleteExpiredPending sweeps requests whose mirror never arrived in time.
// Returns how many rows were removed.
func (s *Store) DeleteExpiredPending(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pending_connections WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindConnectionMatches returns every mutual unexpired pair exactly once,
// together with both user rows for submission.
func (s *Store) FindConnectionMatches(ctx context.Context) ([]model.ConnectionMatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			p1.id, p1.from_user_id, p1.to_user_id, p1.created_at, p1.expires_at,
			p2.id, p2.from_user_id, p2.to_user_id, p2.created_at, p2.expires_at,
			u1.id, u1.wallet_address, u1.attestation_count, u1.created_at, u1.updated_at,
			u2.id, u2.wallet_address, u2.attestation_count, u2.created_at, u2.updated_at
		FROM pending_connections p1
		JOIN pending_connections p2
			ON p1.from_user_id = p2.to_user_id AND p1.to_user_id = p2.from_user_id
		JOIN users u1 ON u1.id = p1.from_user_id
		JOIN users u2 ON u2.id = p2.from_user_id
		WHERE p1.from_user_id < p2.from_user_id
			AND p1.expires_at > now() AND p2.expires_at > now()
		ORDER BY p1.created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []model.ConnectionMatch
	for rows.Next() {
		var m model.ConnectionMatch
		if err := rows.Scan(
			&m.Pending1.ID, &m.Pending1.FromUserID, &m.Pending1.ToUserID, &m.Pending1.CreatedAt, &m.Pending1.ExpiresAt,
			&m.Pending2.ID, &m.Pending2.FromUserID, &m.Pending2.ToUserID, &m.Pending2.CreatedAt, &m.Pending2.ExpiresAt,
			&m.User1.ID, &m.User1.WalletAddress, &m.User1.AttestationCount, &m.User1.CreatedAt, &m.User1.UpdatedAt,
			&m.User2.ID, &m.User2.WalletAddress, &m.User2.AttestationCount, &m.User2.CreatedAt, &m.User2.UpdatedAt,
		); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeletePendingPair removes both sides of a matched pair after submission.
func (s *Store) DeletePendingPair(ctx context.Context, id1, id2 string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pending_connections WHERE id = $1 OR id = $2`, id1, id2)
	return err
}
