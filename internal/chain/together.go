package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const togetherABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "onBehalfOf", "type": "address"},
      {"internalType": "address", "name": "togetherWith", "type": "address"},
      {"internalType": "uint256", "name": "timestamp", "type": "uint256"},
      {
        "components": [
          {"internalType": "bytes32", "name": "nonce", "type": "bytes32"},
          {"internalType": "uint256", "name": "deadline", "type": "uint256"},
          {"internalType": "bytes", "name": "signature", "type": "bytes"}
        ],
        "internalType": "struct AuthData",
        "name": "authData",
        "type": "tuple"
      }
    ],
    "name": "together",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	togetherABI     abi.ABI
	togetherABIOnce sync.Once
	togetherABIErr  error
)

// TogetherABI returns the parsed together contract ABI.
func TogetherABI() (abi.ABI, error) {
	togetherABIOnce.Do(func() {
		togetherABI, togetherABIErr = abi.JSON(strings.NewReader(togetherABIJSON))
	})
	return togetherABI, togetherABIErr
}

// AuthData mirrors the contract's authorization tuple.
type AuthData struct {
	Nonce     [32]byte
	Deadline  *big.Int
	Signature []byte
}

const (
	submitAttempts = 3
	nonceAttempts  = 2
)

// TogetherContract submits together attestations with the relayer key.
type TogetherContract struct {
	client  *Client
	address common.Address
	chainID *big.Int
	key     *ecdsa.PrivateKey
	sender  common.Address
	logger  *zap.Logger
}

// NewTogetherContract builds a submitter bound to one contract and signing key.
func NewTogetherContract(client *Client, address common.Address, chainID *big.Int, key *ecdsa.PrivateKey, logger *zap.Logger) *TogetherContract {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TogetherContract{
		client:  client,
		address: address,
		chainID: chainID,
		key:     key,
		sender:  crypto.PubkeyToAddress(key.PublicKey),
		logger:  logger,
	}
}

// Sender returns the relayer address derived from the signing key.
func (t *TogetherContract) Sender() common.Address {
	return t.sender
}

// Submit sends together(onBehalfOf, togetherWith, timestamp, authData) and
// returns the transaction hash. Nonce conflicts are retried with a fresh
// nonce; gas price is whatever the node suggests.
func (t *TogetherContract) Submit(
	ctx context.Context,
	onBehalfOf common.Address,
	togetherWith common.Address,
	timestamp *big.Int,
	auth AuthData,
) (common.Hash, error) {
	parsed, err := TogetherABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("together abi: %w", err)
	}
	data, err := parsed.Pack("together", onBehalfOf, togetherWith, timestamp, auth)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack together call: %w", err)
	}

	gasPrice, err := t.suggestGasPriceWithRetry(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < submitAttempts; attempt++ {
		nonce, err := t.pendingNonceWithRetry(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
		}

		gasLimit, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
			From:     t.sender,
			To:       &t.address,
			GasPrice: gasPrice,
			Data:     data,
		})
		if err != nil {
			lastErr = fmt.Errorf("estimate gas: %w", err)
			t.logger.Warn("gas estimation failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		gasLimit += gasLimit / 5

		tx := types.NewTransaction(nonce, t.address, big.NewInt(0), gasLimit, gasPrice, data)
		signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.key)
		if err != nil {
			return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
		}

		if err := t.client.SendTransaction(ctx, signed); err != nil {
			lastErr = err
			if isNonceConflict(err) {
				t.logger.Warn("nonce conflict, retrying with fresh nonce", zap.Int("attempt", attempt+1), zap.Error(err))
				if sleepErr := sleepCtx(ctx, time.Duration(200*(attempt+1))*time.Millisecond); sleepErr != nil {
					return common.Hash{}, sleepErr
				}
				continue
			}
			t.logger.Error("send transaction failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		t.logger.Info("together transaction sent",
			zap.String("tx_hash", signed.Hash().Hex()),
			zap.String("on_behalf_of", onBehalfOf.Hex()),
			zap.String("together_with", togetherWith.Hex()),
			zap.Uint64("nonce", nonce),
			zap.Uint64("gas_limit", gasLimit),
		)
		return signed.Hash(), nil
	}

	return common.Hash{}, fmt.Errorf("send transaction after %d attempts: %w", submitAttempts, lastErr)
}

func (t *TogetherContract) suggestGasPriceWithRetry(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := withRetry(ctx, nonceAttempts, 100*time.Millisecond, func(ctx context.Context) error {
		var err error
		price, err = t.client.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

func (t *TogetherContract) pendingNonceWithRetry(ctx context.Context) (uint64, error) {
	var nonce uint64
	err := withRetry(ctx, nonceAttempts, 100*time.Millisecond, func(ctx context.Context) error {
		var err error
		nonce, err = t.client.PendingNonceAt(ctx, t.sender)
		return err
	})
	return nonce, err
}

func isNonceConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "already known") ||
		strings.Contains(msg, "replacement transaction underpriced")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
