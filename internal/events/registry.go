package events

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"castwatch/internal/metrics"
	"castwatch/internal/model"
	"castwatch/internal/watcher"
)

// AuctionSink persists auction-side events.
type AuctionSink interface {
	UpsertAuctionStarted(ctx context.Context, castHash, creatorAddress string, creatorFid int64) error
	SettleAuction(ctx context.Context, castHash, winnerAddress string, winnerFid int64) error
	MarkPresaleSold(ctx context.Context, tokenID, buyer, txHash string) error
}

// AttestationSink persists together attestations.
type AttestationSink interface {
	RecordAttestation(ctx context.Context, att model.TogetherAttestation) error
}

// Announcer broadcasts a stored attestation to downstream consumers.
// Announcements are best-effort: a failed announce never fails the range.
type Announcer interface {
	AnnounceAttestation(ctx context.Context, att model.TogetherAttestation) error
}

// AuctionTable maps the auction-side topics to handlers writing through sink.
func AuctionTable(sink AuctionSink, logger *zap.Logger) watcher.HandlerTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	return watcher.HandlerTable{
		TopicAuctionStarted: func(ctx context.Context, lg types.Log) error {
			if lg.Removed {
				return watcher.ErrReorgInvalidated
			}
			ev, err := DecodeAuctionStarted(lg)
			if err != nil {
				return &watcher.DecodeError{Event: "AuctionStarted", Block: lg.BlockNumber, TxHash: lg.TxHash.Hex(), Err: err}
			}
			if err := sink.UpsertAuctionStarted(ctx, ev.CastHash, ev.Creator, ev.CreatorFid); err != nil {
				return &watcher.PersistenceError{Event: "AuctionStarted", Err: err}
			}
			metrics.EventsPersisted.WithLabelValues("auction_started").Inc()
			logger.Debug("auction started",
				zap.String("cast_hash", ev.CastHash), zap.Int64("creator_fid", ev.CreatorFid))
			return nil
		},
		TopicAuctionSettled: func(ctx context.Context, lg types.Log) error {
			if lg.Removed {
				return watcher.ErrReorgInvalidated
			}
			ev, err := DecodeAuctionSettled(lg)
			if err != nil {
				return &watcher.DecodeError{Event: "AuctionSettled", Block: lg.BlockNumber, TxHash: lg.TxHash.Hex(), Err: err}
			}
			if err := sink.SettleAuction(ctx, ev.CastHash, ev.Winner, ev.WinnerFid); err != nil {
				return &watcher.PersistenceError{Event: "AuctionSettled", Err: err}
			}
			metrics.EventsPersisted.WithLabelValues("auction_settled").Inc()
			logger.Debug("auction settled",
				zap.String("cast_hash", ev.CastHash), zap.String("winner", ev.Winner))
			return nil
		},
		TopicPresaleClaimed: func(ctx context.Context, lg types.Log) error {
			if lg.Removed {
				return watcher.ErrReorgInvalidated
			}
			ev, err := DecodePresaleClaimed(lg)
			if err != nil {
				return &watcher.DecodeError{Event: "PresaleClaimed", Block: lg.BlockNumber, TxHash: lg.TxHash.Hex(), Err: err}
			}
			if err := sink.MarkPresaleSold(ctx, ev.TokenID, ev.Buyer, ev.TxHash); err != nil {
				return &watcher.PersistenceError{Event: "PresaleClaimed", Err: err}
			}
			metrics.EventsPersisted.WithLabelValues("presale_claimed").Inc()
			logger.Debug("presale claimed",
				zap.String("token_id", ev.TokenID), zap.String("buyer", ev.Buyer))
			return nil
		},
	}
}

// AttestationTable maps the together topic to a handler writing through
// sink. announce may be nil. The topic is derived from the event ABI, so
// construction can fail.
func AttestationTable(sink AttestationSink, announce Announcer, logger *zap.Logger) (watcher.HandlerTable, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	topic, err := TopicTogetherAttested()
	if err != nil {
		return nil, err
	}
	return watcher.HandlerTable{
		topic: func(ctx context.Context, lg types.Log) error {
			if lg.Removed {
				return watcher.ErrReorgInvalidated
			}
			ev, err := DecodeTogetherAttested(lg)
			if err != nil {
				return &watcher.DecodeError{Event: "TogetherAttested", Block: lg.BlockNumber, TxHash: lg.TxHash.Hex(), Err: err}
			}
			att := model.TogetherAttestation{
				Address1:    ev.Address1,
				Address2:    ev.Address2,
				Timestamp:   ev.Timestamp,
				TxHash:      ev.TxHash,
				BlockNumber: ev.BlockNumber,
			}
			if err := sink.RecordAttestation(ctx, att); err != nil {
				return &watcher.PersistenceError{Event: "TogetherAttested", Err: err}
			}
			metrics.EventsPersisted.WithLabelValues("together_attested").Inc()
			if announce != nil {
				if err := announce.AnnounceAttestation(ctx, att); err != nil {
					logger.Warn("announce attestation", zap.Error(err))
				}
			}
			logger.Debug("attestation recorded",
				zap.String("address_1", ev.Address1), zap.String("address_2", ev.Address2),
				zap.Int64("timestamp", ev.Timestamp))
			return nil
		},
	}, nil
}
