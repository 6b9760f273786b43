package model

import "time"

// User is one wallet known to the together side.
//
// AttestationCount is denormalized for profile reads; the attestation sink
// recomputes it from together_attestations after every insert, so a drifted
// value heals on the next event touching the user.
type User struct {
	ID               int32     `json:"id"`
	WalletAddress    string    `json:"wallet_address"`
	AttestationCount int64     `json:"attestation_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PendingConnection is a one-directional together request awaiting its
// mirror. Expired rows are swept by the matcher.
type PendingConnection struct {
	ID         string    `json:"id"`
	FromUserID int32     `json:"from_user_id"`
	ToUserID   int32     `json:"to_user_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ConnectionMatch is a mutual pair of pending connections ready for
// on-chain submission.
type ConnectionMatch struct {
	User1    User
	User2    User
	Pending1 PendingConnection
	Pending2 PendingConnection
}
