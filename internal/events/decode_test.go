package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestTopicTogetherAttestedMatchesSignature(t *testing.T) {
	topic, err := TopicTogetherAttested()
	if err != nil {
		t.Fatalf("derive topic: %v", err)
	}

	want := crypto.Keccak256Hash([]byte("TogetherAttested(address,address,uint256)"))
	if topic != want {
		t.Fatalf("topic mismatch: %s != %s", topic.Hex(), want.Hex())
	}
}

func TestDecodeAuctionStarted(t *testing.T) {
	castHash := common.HexToHash("0x4c9fd4cd96ba00bc01ec4a8b2b24e5711218d4587d63dbdeaf7c113744ebf214")

	log := types.Log{
		Topics: []common.Hash{
			TopicAuctionStarted,
			castHash,
			common.HexToHash("0x00000000000000000000000063396c4005a88295c59f222aa7a0bcc36d0d9b63"),
			common.BigToHash(big.NewInt(977233)),
		},
		BlockNumber: 33200700,
		TxHash:      common.HexToHash("0x77"),
	}

	ev, err := DecodeAuctionStarted(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if ev.CastHash != castHash.Hex() {
		t.Fatalf("cast hash mismatch: %s", ev.CastHash)
	}
	// The address lives in the low 20 bytes of the padded topic word.
	if ev.Creator != common.HexToAddress("0x63396c4005a88295c59f222aa7a0bcc36d0d9b63").Hex() {
		t.Fatalf("creator mismatch: %s", ev.Creator)
	}
	if ev.CreatorFid != 977233 {
		t.Fatalf("creator fid mismatch: %d", ev.CreatorFid)
	}
	if ev.BlockNumber != 33200700 {
		t.Fatalf("block mismatch: %d", ev.BlockNumber)
	}
}

func TestDecodeAuctionSettled(t *testing.T) {
	castHash := common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000001")
	winner := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	log := types.Log{
		Topics: []common.Hash{
			TopicAuctionSettled,
			castHash,
			common.BytesToHash(winner.Bytes()),
			common.BigToHash(big.NewInt(42)),
		},
		BlockNumber: 100,
		TxHash:      common.HexToHash("0x88"),
	}

	ev, err := DecodeAuctionSettled(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if ev.CastHash != castHash.Hex() || ev.Winner != winner.Hex() || ev.WinnerFid != 42 {
		t.Fatalf("settled mismatch: %+v", ev)
	}
}

func TestDecodePresaleClaimed(t *testing.T) {
	buyer := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	log := types.Log{
		Topics: []common.Hash{
			TopicPresaleClaimed,
			common.BytesToHash(buyer.Bytes()),
			common.BigToHash(big.NewInt(31337)),
		},
		BlockNumber: 200,
		TxHash:      common.HexToHash("0x99"),
	}

	ev, err := DecodePresaleClaimed(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if ev.Buyer != buyer.Hex() {
		t.Fatalf("buyer mismatch: %s", ev.Buyer)
	}
	if ev.TokenID != "31337" {
		t.Fatalf("token id mismatch: %s", ev.TokenID)
	}
}

func TestDecodeTogetherAttested(t *testing.T) {
	parsed, err := TogetherEventABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	data, err := parsed.Events["TogetherAttested"].Inputs.NonIndexed().Pack(big.NewInt(1700000123))
	if err != nil {
		t.Fatalf("pack data: %v", err)
	}

	topic, err := TopicTogetherAttested()
	if err != nil {
		t.Fatalf("derive topic: %v", err)
	}

	addr1 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	addr2 := common.HexToAddress("0x2222222222222222222222222222222222222222")

	log := types.Log{
		Topics: []common.Hash{
			topic,
			common.BytesToHash(addr1.Bytes()),
			common.BytesToHash(addr2.Bytes()),
		},
		Data:        data,
		BlockNumber: 300,
		TxHash:      common.HexToHash("0xaa"),
	}

	ev, err := DecodeTogetherAttested(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if ev.Address1 != addr1.Hex() || ev.Address2 != addr2.Hex() {
		t.Fatalf("address mismatch: %+v", ev)
	}
	if ev.Timestamp != 1700000123 {
		t.Fatalf("timestamp mismatch: %d", ev.Timestamp)
	}
}

func TestDecodeShortTopics(t *testing.T) {
	short := types.Log{Topics: []common.Hash{TopicAuctionStarted}}

	if _, err := DecodeAuctionStarted(short); err == nil {
		t.Fatalf("expected error for short auction started topics")
	}
	if _, err := DecodeAuctionSettled(short); err == nil {
		t.Fatalf("expected error for short auction settled topics")
	}
	if _, err := DecodePresaleClaimed(short); err == nil {
		t.Fatalf("expected error for short presale topics")
	}
	if _, err := DecodeTogetherAttested(short); err == nil {
		t.Fatalf("expected error for short together topics")
	}
}

func TestDecodeFidOutOfRange(t *testing.T) {
	log := types.Log{
		Topics: []common.Hash{
			TopicAuctionStarted,
			common.HexToHash("0x01"),
			common.HexToHash("0x02"),
			common.HexToHash("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"),
		},
	}

	if _, err := DecodeAuctionStarted(log); err == nil {
		t.Fatalf("expected error for fid beyond int64")
	}
}

func TestDecodeTogetherAttestedBadData(t *testing.T) {
	topic, err := TopicTogetherAttested()
	if err != nil {
		t.Fatalf("derive topic: %v", err)
	}

	log := types.Log{
		Topics: []common.Hash{
			topic,
			common.HexToHash("0x01"),
			common.HexToHash("0x02"),
		},
		Data: []byte{0x01, 0x02},
	}

	if _, err := DecodeTogetherAttested(log); err == nil {
		t.Fatalf("expected error for truncated data")
	}
}
