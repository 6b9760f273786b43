package model

import "time"

// TogetherAttestation is one on-chain attestation between two addresses.
//
// Address1 and Address2 are stored canonically: lowercase hex, Address1
// strictly less than Address2, so a pair always maps to the same row
// regardless of the order the contract emitted them in.
type TogetherAttestation struct {
	ID          string    `json:"id"`
	Address1    string    `json:"address_1"`
	Address2    string    `json:"address_2"`
	Timestamp   int64     `json:"attestation_timestamp"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	CreatedAt   time.Time `json:"created_at"`
}
