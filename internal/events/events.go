package events

// AuctionStarted is a decoded auction start for one cast.
type AuctionStarted struct {
	CastHash    string
	Creator     string
	CreatorFid  int64
	BlockNumber uint64
	TxHash      string
}

// AuctionSettled is a decoded auction settlement.
type AuctionSettled struct {
	CastHash    string
	Winner      string
	WinnerFid   int64
	BlockNumber uint64
	TxHash      string
}

// PresaleClaimed is a decoded presale purchase of one token.
type PresaleClaimed struct {
	Buyer       string
	TokenID     string
	BlockNumber uint64
	TxHash      string
}

// TogetherAttested is a decoded attestation between two addresses.
// Addresses are carried as emitted; canonical ordering happens at the sink.
type TogetherAttested struct {
	Address1    string
	Address2    string
	Timestamp   int64
	BlockNumber uint64
	TxHash      string
}
