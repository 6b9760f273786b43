package events

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"castwatch/internal/model"
	"castwatch/internal/watcher"
)

type fakeAuctionSink struct {
	started []AuctionStarted
	settled []AuctionSettled
	sold    []PresaleClaimed
	err     error
}

func (f *fakeAuctionSink) UpsertAuctionStarted(_ context.Context, castHash, creatorAddress string, creatorFid int64) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, AuctionStarted{CastHash: castHash, Creator: creatorAddress, CreatorFid: creatorFid})
	return nil
}

func (f *fakeAuctionSink) SettleAuction(_ context.Context, castHash, winnerAddress string, winnerFid int64) error {
	if f.err != nil {
		return f.err
	}
	f.settled = append(f.settled, AuctionSettled{CastHash: castHash, Winner: winnerAddress, WinnerFid: winnerFid})
	return nil
}

func (f *fakeAuctionSink) MarkPresaleSold(_ context.Context, tokenID, buyer, txHash string) error {
	if f.err != nil {
		return f.err
	}
	f.sold = append(f.sold, PresaleClaimed{TokenID: tokenID, Buyer: buyer, TxHash: txHash})
	return nil
}

type fakeAttestationSink struct {
	recorded []model.TogetherAttestation
	err      error
}

func (f *fakeAttestationSink) RecordAttestation(_ context.Context, att model.TogetherAttestation) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, att)
	return nil
}

type fakeAnnouncer struct {
	announced []model.TogetherAttestation
	err       error
}

func (f *fakeAnnouncer) AnnounceAttestation(_ context.Context, att model.TogetherAttestation) error {
	if f.err != nil {
		return f.err
	}
	f.announced = append(f.announced, att)
	return nil
}

func startedLog() types.Log {
	return types.Log{
		Topics: []common.Hash{
			TopicAuctionStarted,
			common.HexToHash("0x4c9fd4cd96ba00bc01ec4a8b2b24e5711218d4587d63dbdeaf7c113744ebf214"),
			common.BytesToHash(common.HexToAddress("0x63396c4005a88295c59f222aa7a0bcc36d0d9b63").Bytes()),
			common.BigToHash(big.NewInt(977233)),
		},
		BlockNumber: 33200700,
		TxHash:      common.HexToHash("0x01"),
	}
}

func TestAuctionTableRoutesEvents(t *testing.T) {
	sink := &fakeAuctionSink{}
	table := AuctionTable(sink, zap.NewNop())

	if err := table[TopicAuctionStarted](context.Background(), startedLog()); err != nil {
		t.Fatalf("started handler: %v", err)
	}
	if len(sink.started) != 1 || sink.started[0].CreatorFid != 977233 {
		t.Fatalf("started sink mismatch: %+v", sink.started)
	}

	settled := types.Log{
		Topics: []common.Hash{
			TopicAuctionSettled,
			common.HexToHash("0x4c9fd4cd96ba00bc01ec4a8b2b24e5711218d4587d63dbdeaf7c113744ebf214"),
			common.BytesToHash(common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb").Bytes()),
			common.BigToHash(big.NewInt(55)),
		},
		TxHash: common.HexToHash("0x02"),
	}
	if err := table[TopicAuctionSettled](context.Background(), settled); err != nil {
		t.Fatalf("settled handler: %v", err)
	}
	if len(sink.settled) != 1 || sink.settled[0].WinnerFid != 55 {
		t.Fatalf("settled sink mismatch: %+v", sink.settled)
	}

	claimed := types.Log{
		Topics: []common.Hash{
			TopicPresaleClaimed,
			common.BytesToHash(common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc").Bytes()),
			common.BigToHash(big.NewInt(31337)),
		},
		TxHash: common.HexToHash("0x03"),
	}
	if err := table[TopicPresaleClaimed](context.Background(), claimed); err != nil {
		t.Fatalf("claimed handler: %v", err)
	}
	if len(sink.sold) != 1 || sink.sold[0].TokenID != "31337" {
		t.Fatalf("sold sink mismatch: %+v", sink.sold)
	}
	if sink.sold[0].TxHash != common.HexToHash("0x03").Hex() {
		t.Fatalf("sold tx hash mismatch: %+v", sink.sold)
	}
}

func TestAuctionTableRemovedLog(t *testing.T) {
	sink := &fakeAuctionSink{}
	table := AuctionTable(sink, zap.NewNop())

	lg := startedLog()
	lg.Removed = true

	err := table[TopicAuctionStarted](context.Background(), lg)
	if !errors.Is(err, watcher.ErrReorgInvalidated) {
		t.Fatalf("expected reorg invalidation, got %v", err)
	}
	if len(sink.started) != 0 {
		t.Fatalf("removed log must not reach the sink")
	}
}

func TestAuctionTableDecodeError(t *testing.T) {
	sink := &fakeAuctionSink{}
	table := AuctionTable(sink, zap.NewNop())

	err := table[TopicAuctionStarted](context.Background(), types.Log{Topics: []common.Hash{TopicAuctionStarted}})

	var decodeErr *watcher.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if decodeErr.Event != "AuctionStarted" {
		t.Fatalf("decode error event mismatch: %s", decodeErr.Event)
	}
}

func TestAuctionTableSinkError(t *testing.T) {
	sink := &fakeAuctionSink{err: errors.New("db down")}
	table := AuctionTable(sink, zap.NewNop())

	err := table[TopicAuctionStarted](context.Background(), startedLog())

	var persistErr *watcher.PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestAttestationTableRecordsAndAnnounces(t *testing.T) {
	sink := &fakeAttestationSink{}
	announcer := &fakeAnnouncer{}

	table, err := AttestationTable(sink, announcer, zap.NewNop())
	if err != nil {
		t.Fatalf("build table: %v", err)
	}

	topic, err := TopicTogetherAttested()
	if err != nil {
		t.Fatalf("derive topic: %v", err)
	}

	parsed, err := TogetherEventABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	data, err := parsed.Events["TogetherAttested"].Inputs.NonIndexed().Pack(big.NewInt(1700000123))
	if err != nil {
		t.Fatalf("pack data: %v", err)
	}

	lg := types.Log{
		Topics: []common.Hash{
			topic,
			common.BytesToHash(common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()),
			common.BytesToHash(common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes()),
		},
		Data:        data,
		BlockNumber: 77,
		TxHash:      common.HexToHash("0x04"),
	}

	if err := table[topic](context.Background(), lg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(sink.recorded) != 1 || sink.recorded[0].Timestamp != 1700000123 {
		t.Fatalf("sink mismatch: %+v", sink.recorded)
	}
	if len(announcer.announced) != 1 {
		t.Fatalf("announcer mismatch: %+v", announcer.announced)
	}

	// A failing announcer never fails the handler.
	announcer.err = errors.New("redis down")
	if err := table[topic](context.Background(), lg); err != nil {
		t.Fatalf("handler with failing announcer: %v", err)
	}
	if len(sink.recorded) != 2 {
		t.Fatalf("sink should still record: %+v", sink.recorded)
	}
}

func TestAttestationTableNilAnnouncer(t *testing.T) {
	sink := &fakeAttestationSink{}

	table, err := AttestationTable(sink, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("build table: %v", err)
	}

	topic, err := TopicTogetherAttested()
	if err != nil {
		t.Fatalf("derive topic: %v", err)
	}

	parsed, err := TogetherEventABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	data, err := parsed.Events["TogetherAttested"].Inputs.NonIndexed().Pack(big.NewInt(5))
	if err != nil {
		t.Fatalf("pack data: %v", err)
	}

	lg := types.Log{
		Topics: []common.Hash{
			topic,
			common.BytesToHash(common.HexToAddress("0x01").Bytes()),
			common.BytesToHash(common.HexToAddress("0x02").Bytes()),
		},
		Data: data,
	}

	if err := table[topic](context.Background(), lg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(sink.recorded) != 1 {
		t.Fatalf("sink mismatch: %+v", sink.recorded)
	}
}
