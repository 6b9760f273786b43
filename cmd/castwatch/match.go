package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"castwatch/internal/chain"
	"castwatch/internal/config"
	"castwatch/internal/eip712"
	"castwatch/internal/matcher"
	"castwatch/internal/store"
)

func runMatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("db url is required")
	}
	if !cfg.TogetherEnabled() {
		return fmt.Errorf("together contract is required")
	}
	if cfg.SignerKey == "" {
		return fmt.Errorf("signer key is required")
	}

	key, err := eip712.ParseKey(cfg.SignerKey)
	if err != nil {
		return fmt.Errorf("parse signer key: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer st.Close()

	client, err := chain.NewClient(ctx, cfg.WorldRPCURL)
	if err != nil {
		return fmt.Errorf("connect worldchain rpc: %w", err)
	}
	defer client.Close()

	chainID, err := client.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	contractAddr := common.HexToAddress(cfg.TogetherContract)
	contract := chain.NewTogetherContract(client, contractAddr, chainID, key, logger)
	signer := eip712.NewSigner(key, chainID.Int64(), contractAddr)

	m := matcher.New(st, signer, contract, cfg.MatchInterval, logger)

	logger.Info("matcher start",
		zap.String("contract", contractAddr.Hex()),
		zap.String("sender", contract.Sender().Hex()),
		zap.Int64("chain_id", chainID.Int64()),
		zap.Duration("interval", cfg.MatchInterval),
	)

	return m.Run(ctx)
}
