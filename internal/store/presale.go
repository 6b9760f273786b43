package store

import "context"

// MarkPresaleSold records a presale claim by token id. The row is inserted if
// the token was never designated, so out-of-order discovery and replay both
// converge on the same sold state. A replay keeps the original sold_at.
func (s *Store) MarkPresaleSold(ctx context.Context, tokenID, buyer, txHash string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO presale_nfts (token_id, sold, sold_to, sold_tx_hash, sold_at)
		VALUES ($1, TRUE, $2, $3, now())
		ON CONFLICT (token_id) DO UPDATE SET
			sold = TRUE,
			sold_to = EXCLUDED.sold_to,
			sold_tx_hash = EXCLUDED.sold_tx_hash,
			sold_at = COALESCE(presale_nfts.sold_at, now())
	`, tokenID, buyer, txHash)
	return err
}

// CleanupExpiredDesignations releases unsold tokens whose designation window
// has passed. Returns how many rows were released.
func (s *Store) CleanupExpiredDesignations(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE presale_nfts
		SET designated_to = NULL, designated_at = NULL, expires_at = NULL
		WHERE expires_at <= now() AND NOT sold
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
