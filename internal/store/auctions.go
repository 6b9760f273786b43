package store

import (
	"context"

	"github.com/google/uuid"
)

// UpsertAuctionStarted records an auction start. Replays and starts arriving
// after an orphan settle update the creator fields but never unset settled.
func (s *Store) UpsertAuctionStarted(ctx context.Context, castHash, creatorAddress string, creatorFid int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auctions (id, cast_hash, creator_address, creator_fid, settled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, now(), now())
		ON CONFLICT (cast_hash) DO UPDATE SET
			creator_address = EXCLUDED.creator_address,
			creator_fid = EXCLUDED.creator_fid,
			updated_at = now()
	`, uuid.NewString(), castHash, creatorAddress, creatorFid)
	return err
}

// SettleAuction marks an auction settled. When the settle arrives before its
// start was ever observed, an orphan row is inserted carrying only the
// settle-side fields; a duplicate settle after that is a no-op.
func (s *Store) SettleAuction(ctx context.Context, castHash, winnerAddress string, winnerFid int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE auctions
		SET settled = TRUE, winner_address = $2, winner_fid = $3, updated_at = now()
		WHERE cast_hash = $1
	`, castHash, winnerAddress, winnerFid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO auctions (id, cast_hash, settled, winner_address, winner_fid, created_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $4, now(), now())
		ON CONFLICT (cast_hash) DO NOTHING
	`, uuid.NewString(), castHash, winnerAddress, winnerFid)
	return err
}
