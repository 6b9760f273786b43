package model

import "time"

// PresaleNFT tracks one presale token from designation through sale.
type PresaleNFT struct {
	TokenID      string     `json:"token_id"`
	DesignatedTo *string    `json:"designated_to,omitempty"`
	DesignatedAt *time.Time `json:"designated_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Sold         bool       `json:"sold"`
	SoldTo       *string    `json:"sold_to,omitempty"`
	SoldTxHash   *string    `json:"sold_tx_hash,omitempty"`
	SoldAt       *time.Time `json:"sold_at,omitempty"`
}
