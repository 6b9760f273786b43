package matcher

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"castwatch/internal/chain"
	"castwatch/internal/eip712"
	"castwatch/internal/metrics"
	"castwatch/internal/model"
)

// Store is the pending-connection surface the matcher sweeps.
type Store interface {
	DeleteExpiredPending(ctx context.Context) (int64, error)
	FindConnectionMatches(ctx context.Context) ([]model.ConnectionMatch, error)
	DeletePendingPair(ctx context.Context, id1, id2 string) error
}

// Submitter sends the on-chain together call for a matched pair.
type Submitter interface {
	Submit(ctx context.Context, onBehalfOf, togetherWith common.Address, timestamp *big.Int, auth chain.AuthData) (common.Hash, error)
}

// Matcher pairs mutual together requests and submits them on-chain. The
// resulting TogetherAttested event flows back through the together watcher;
// the matcher itself never writes attestation rows.
type Matcher struct {
	store    Store
	signer   *eip712.Signer
	contract Submitter
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a matcher ticking at interval.
func New(store Store, signer *eip712.Signer, contract Submitter, interval time.Duration, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		store:    store,
		signer:   signer,
		contract: contract,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run ticks until ctx is canceled. The first tick happens immediately.
func (m *Matcher) Run(ctx context.Context) error {
	m.logger.Info("matcher started", zap.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Matcher) tick(ctx context.Context) {
	deleted, err := m.store.DeleteExpiredPending(ctx)
	if err != nil {
		m.logger.Error("sweep expired pending", zap.Error(err))
	} else if deleted > 0 {
		m.logger.Info("expired pending connections swept", zap.Int64("count", deleted))
	}

	matches, err := m.store.FindConnectionMatches(ctx)
	if err != nil {
		m.logger.Error("find matches", zap.Error(err))
		return
	}

	for _, match := range matches {
		if err := m.submit(ctx, match); err != nil {
			// Leave both pending rows in place; the next tick retries.
			metrics.MatchesSubmitted.WithLabelValues("error").Inc()
			m.logger.Error("submit match",
				zap.String("user_1", match.User1.WalletAddress),
				zap.String("user_2", match.User2.WalletAddress),
				zap.Error(err))
			continue
		}
		metrics.MatchesSubmitted.WithLabelValues("ok").Inc()
	}
}

func (m *Matcher) submit(ctx context.Context, match model.ConnectionMatch) error {
	addr1 := common.HexToAddress(match.User1.WalletAddress)
	addr2 := common.HexToAddress(match.User2.WalletAddress)
	now := m.now()
	timestamp := big.NewInt(now.Unix())

	nonce, err := eip712.NewNonce()
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	permit, err := m.signer.SignTogether(addr1, addr2, timestamp, nonce, eip712.Deadline(now))
	if err != nil {
		return fmt.Errorf("sign permit: %w", err)
	}

	txHash, err := m.contract.Submit(ctx, addr1, addr2, timestamp, chain.AuthData{
		Nonce:     permit.Nonce,
		Deadline:  permit.Deadline,
		Signature: permit.Signature,
	})
	if err != nil {
		return fmt.Errorf("submit together: %w", err)
	}

	// The transaction is out; failing to clear the pending rows only risks
	// a duplicate submission next tick, which the contract tolerates.
	if err := m.store.DeletePendingPair(ctx, match.Pending1.ID, match.Pending2.ID); err != nil {
		m.logger.Error("clear matched pending rows", zap.Error(err))
	}

	m.logger.Info("together submitted",
		zap.String("user_1", match.User1.WalletAddress),
		zap.String("user_2", match.User2.WalletAddress),
		zap.String("tx", txHash.Hex()))
	return nil
}
