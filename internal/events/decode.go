package events

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event signature topics for the auction and casts contracts. These are
// pinned rather than derived because the contracts are fixed deployments.
var (
	TopicAuctionStarted = common.HexToHash("0xff806b81f0835f88057555bc17fb31912ff47d1cf9240f611693dcebb314d322")
	TopicAuctionSettled = common.HexToHash("0x16702db8515cd96559fff387e936d2e1d3d73133dcc6eb4d9ca8eed1aa6e2844")
	TopicPresaleClaimed = common.HexToHash("0xe0270c82313d232e67828d1d32f511c912186a68279bff9f57b2325d4840c91a")
)

const togetherEventABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "addr1", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "addr2", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "timestamp", "type": "uint256"}
    ],
    "name": "TogetherAttested",
    "type": "event"
  }
]`

var (
	togetherEventABI     abi.ABI
	togetherEventABIOnce sync.Once
	togetherEventABIErr  error
)

// TogetherEventABI returns the parsed together event ABI.
func TogetherEventABI() (abi.ABI, error) {
	togetherEventABIOnce.Do(func() {
		togetherEventABI, togetherEventABIErr = abi.JSON(strings.NewReader(togetherEventABIJSON))
	})
	return togetherEventABI, togetherEventABIErr
}

// TopicTogetherAttested returns the TogetherAttested signature topic,
// derived from the event ABI.
func TopicTogetherAttested() (common.Hash, error) {
	parsed, err := TogetherEventABI()
	if err != nil {
		return common.Hash{}, err
	}
	return parsed.Events["TogetherAttested"].ID, nil
}

// DecodeAuctionStarted decodes an AuctionStarted log.
// Topics: signature, castHash bytes32, creator address, creatorFid uint96.
func DecodeAuctionStarted(log types.Log) (AuctionStarted, error) {
	if len(log.Topics) < 4 {
		return AuctionStarted{}, fmt.Errorf("auction started: expected 4 topics, got %d", len(log.Topics))
	}
	fid, err := topicInt64(log.Topics[3])
	if err != nil {
		return AuctionStarted{}, fmt.Errorf("auction started creator fid: %w", err)
	}
	return AuctionStarted{
		CastHash:    log.Topics[1].Hex(),
		Creator:     topicAddress(log.Topics[2]).Hex(),
		CreatorFid:  fid,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
	}, nil
}

// DecodeAuctionSettled decodes an AuctionSettled log.
// Topics: signature, castHash bytes32, winner address, winnerFid uint96.
func DecodeAuctionSettled(log types.Log) (AuctionSettled, error) {
	if len(log.Topics) < 4 {
		return AuctionSettled{}, fmt.Errorf("auction settled: expected 4 topics, got %d", len(log.Topics))
	}
	fid, err := topicInt64(log.Topics[3])
	if err != nil {
		return AuctionSettled{}, fmt.Errorf("auction settled winner fid: %w", err)
	}
	return AuctionSettled{
		CastHash:    log.Topics[1].Hex(),
		Winner:      topicAddress(log.Topics[2]).Hex(),
		WinnerFid:   fid,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
	}, nil
}

// DecodePresaleClaimed decodes a PresaleClaimed log.
// Topics: signature, buyer address, tokenId uint256.
func DecodePresaleClaimed(log types.Log) (PresaleClaimed, error) {
	if len(log.Topics) < 3 {
		return PresaleClaimed{}, fmt.Errorf("presale claimed: expected 3 topics, got %d", len(log.Topics))
	}
	return PresaleClaimed{
		Buyer:       topicAddress(log.Topics[1]).Hex(),
		TokenID:     topicBig(log.Topics[2]).String(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
	}, nil
}

// DecodeTogetherAttested decodes a TogetherAttested log.
// Topics: signature, addr1 address, addr2 address; data: timestamp uint256.
func DecodeTogetherAttested(log types.Log) (TogetherAttested, error) {
	if len(log.Topics) < 3 {
		return TogetherAttested{}, fmt.Errorf("together attested: expected 3 topics, got %d", len(log.Topics))
	}

	parsed, err := TogetherEventABI()
	if err != nil {
		return TogetherAttested{}, err
	}
	values, err := parsed.Events["TogetherAttested"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return TogetherAttested{}, fmt.Errorf("together attested data: %w", err)
	}
	if len(values) != 1 {
		return TogetherAttested{}, fmt.Errorf("together attested: unexpected data values: %d", len(values))
	}
	rawTs, ok := values[0].(*big.Int)
	if !ok {
		return TogetherAttested{}, fmt.Errorf("together attested: timestamp is %T", values[0])
	}
	if !rawTs.IsInt64() {
		return TogetherAttested{}, fmt.Errorf("together attested: timestamp out of range: %s", rawTs)
	}

	return TogetherAttested{
		Address1:    topicAddress(log.Topics[1]).Hex(),
		Address2:    topicAddress(log.Topics[2]).Hex(),
		Timestamp:   rawTs.Int64(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
	}, nil
}

// topicAddress extracts the address from the low 20 bytes of a topic word.
func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}

func topicBig(topic common.Hash) *big.Int {
	return new(big.Int).SetBytes(topic.Bytes())
}

func topicInt64(topic common.Hash) (int64, error) {
	v := topicBig(topic)
	if !v.IsInt64() {
		return 0, fmt.Errorf("value out of int64 range: %s", v)
	}
	return v.Int64(), nil
}
