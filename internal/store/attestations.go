package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"castwatch/internal/model"
)

const attestationColumns = `id, address_1, address_2, attestation_timestamp, tx_hash, block_number, created_at`

// CanonicalPair lowercases two addresses and orders them lexicographically,
// the storage order for attestation pairs.
func CanonicalPair(a, b string) (string, string) {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return a, b
}

// RecordAttestation persists one TogetherAttested event: the attestation row,
// both user rows, and both denormalized counters, atomically. The insert is
// keyed on (address_1, address_2, attestation_timestamp), so replaying a
// range re-runs the counter refresh but never duplicates the attestation.
func (s *Store) RecordAttestation(ctx context.Context, att model.TogetherAttestation) error {
	a1, a2 := CanonicalPair(att.Address1, att.Address2)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO together_attestations (id, address_1, address_2, attestation_timestamp, tx_hash, block_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (address_1, address_2, attestation_timestamp) DO NOTHING
	`, uuid.NewString(), a1, a2, att.Timestamp, att.TxHash, int64(att.BlockNumber))
	if err != nil {
		return err
	}

	for _, addr := range []string{a1, a2} {
		if _, err := getOrCreateUser(ctx, tx, addr); err != nil {
			return fmt.Errorf("user %s: %w", addr, err)
		}
		if err := refreshAttestationCount(ctx, tx, addr); err != nil {
			return fmt.Errorf("count %s: %w", addr, err)
		}
	}

	return tx.Commit(ctx)
}

// AttestationsForPair returns every attestation between two addresses,
// newest first. Argument order does not matter.
func (s *Store) AttestationsForPair(ctx context.Context, addrA, addrB string) ([]model.TogetherAttestation, error) {
	a1, a2 := CanonicalPair(addrA, addrB)
	rows, err := s.pool.Query(ctx, `
		SELECT `+attestationColumns+`
		FROM together_attestations
		WHERE address_1 = $1 AND address_2 = $2
		ORDER BY attestation_timestamp DESC
	`, a1, a2)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttestations(rows)
}

// RecentAttestations returns the newest attestations involving an address.
func (s *Store) RecentAttestations(ctx context.Context, address string, limit int) ([]model.TogetherAttestation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+attestationColumns+`
		FROM together_attestations
		WHERE address_1 = $1 OR address_2 = $1
		ORDER BY attestation_timestamp DESC
		LIMIT $2
	`, strings.ToLower(address), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttestations(rows)
}

func collectAttestations(rows pgx.Rows) ([]model.TogetherAttestation, error) {
	var out []model.TogetherAttestation
	for rows.Next() {
		var (
			att   model.TogetherAttestation
			block int64
		)
		if err := rows.Scan(&att.ID, &att.Address1, &att.Address2, &att.Timestamp, &att.TxHash, &block, &att.CreatedAt); err != nil {
			return nil, err
		}
		att.BlockNumber = uint64(block)
		out = append(out, att)
	}
	return out, rows.Err()
}
