package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"castwatch/internal/model"
)

// LoadCursor returns the persisted cursor for a watcher id.
func (s *Store) LoadCursor(ctx context.Context, id string) (model.Cursor, bool, error) {
	if id == "" {
		return model.Cursor{}, false, fmt.Errorf("watcher id required")
	}
	var (
		cur   model.Cursor
		last  int64
		chunk int64
	)
	cur.ID = id
	row := s.pool.QueryRow(ctx,
		`SELECT last_processed_block, chunk_size, updated_at FROM watcher_state WHERE id=$1`, id)
	if err := row.Scan(&last, &chunk, &cur.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Cursor{}, false, nil
		}
		return model.Cursor{}, false, err
	}
	cur.LastProcessed = uint64(last)
	cur.ChunkSize = uint64(chunk)
	return cur, true, nil
}

// SaveCursor upserts watcher progress. A nil chunkSize keeps the stored
// chunk, so a watermark advance and a chunk change never have to travel
// together; the nil form requires an existing row.
func (s *Store) SaveCursor(ctx context.Context, id string, lastProcessed uint64, chunkSize *uint64) error {
	if id == "" {
		return fmt.Errorf("watcher id required")
	}

	if chunkSize == nil {
		tag, err := s.pool.Exec(ctx, `
			UPDATE watcher_state
			SET last_processed_block = $2, updated_at = now()
			WHERE id = $1
		`, id, int64(lastProcessed))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("no cursor row for %s", id)
		}
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO watcher_state (id, last_processed_block, chunk_size, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			chunk_size = EXCLUDED.chunk_size,
			updated_at = now()
	`, id, int64(lastProcessed), int64(*chunkSize))
	return err
}

// DeleteCursor removes a watcher's cursor so the next run reinitializes
// from the configured start block. Reports whether a row existed.
func (s *Store) DeleteCursor(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("watcher id required")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM watcher_state WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListCursors returns every watcher cursor ordered by id.
func (s *Store) ListCursors(ctx context.Context) ([]model.Cursor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, last_processed_block, chunk_size, updated_at FROM watcher_state ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cursors []model.Cursor
	for rows.Next() {
		var (
			cur   model.Cursor
			last  int64
			chunk int64
		)
		if err := rows.Scan(&cur.ID, &last, &chunk, &cur.UpdatedAt); err != nil {
			return nil, err
		}
		cur.LastProcessed = uint64(last)
		cur.ChunkSize = uint64(chunk)
		cursors = append(cursors, cur)
	}
	return cursors, rows.Err()
}
