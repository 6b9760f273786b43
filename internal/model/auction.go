package model

import "time"

// Auction is one cast auction row, keyed by the cast hash the contract emits.
//
// A row normally appears via AuctionStarted and is later settled. When the
// watcher sees a settle for a cast it never saw start (backfill gaps), it
// stores an orphan row with the creator fields left nil.
type Auction struct {
	ID             string    `json:"id"`
	CastHash       string    `json:"cast_hash"`
	CreatorAddress *string   `json:"creator_address,omitempty"`
	CreatorFid     *int64    `json:"creator_fid,omitempty"`
	Settled        bool      `json:"settled"`
	WinnerAddress  *string   `json:"winner_address,omitempty"`
	WinnerFid      *int64    `json:"winner_fid,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
