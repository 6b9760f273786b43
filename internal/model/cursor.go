package model

import "time"

// Cursor is the persisted progress of one watcher identity.
//
// LastProcessed is the highest block whose range has been fully persisted;
// the next range starts at LastProcessed+1. ChunkSize is the adaptive range
// width the watcher was using when it last saved.
type Cursor struct {
	ID            string    `json:"id"`
	LastProcessed uint64    `json:"last_processed_block"`
	ChunkSize     uint64    `json:"chunk_size"`
	UpdatedAt     time.Time `json:"updated_at"`
}
