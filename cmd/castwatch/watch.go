package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"castwatch/internal/chain"
	"castwatch/internal/config"
	"castwatch/internal/events"
	"castwatch/internal/publisher"
	"castwatch/internal/store"
	"castwatch/internal/watcher"
)

func runWatch(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer st.Close()

	baseClient, err := chain.NewClient(ctx, cfg.BaseRPCURL)
	if err != nil {
		return fmt.Errorf("connect base rpc: %w", err)
	}
	defer baseClient.Close()

	bounds := watcher.Bounds{
		Initial: cfg.InitialChunk,
		Min:     cfg.MinChunk,
		Max:     cfg.MaxChunk,
	}

	auctionSources := []watcher.Source{
		{
			Address: common.HexToAddress(cfg.AuctionContract),
			Topics:  []common.Hash{events.TopicAuctionStarted, events.TopicAuctionSettled},
		},
		{
			Address: common.HexToAddress(cfg.CastsContract),
			Topics:  []common.Hash{events.TopicPresaleClaimed},
		},
	}

	sweepDesignations := func(hctx context.Context) error {
		n, err := st.CleanupExpiredDesignations(hctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("expired designations cleared", zap.Int64("count", n))
		}
		return nil
	}

	auctionWatcher := watcher.New(watcher.Config{
		ID:          "auction_watcher",
		StartBlock:  cfg.AuctionStartBlock,
		Interval:    cfg.Interval,
		Bounds:      bounds,
		HeadRefresh: cfg.HeadRefresh,
	}, baseClient, st, auctionSources, events.AuctionTable(st, logger), logger, sweepDesignations)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return auctionWatcher.Run(gctx)
	})

	if cfg.TogetherEnabled() {
		worldClient, err := chain.NewClient(ctx, cfg.WorldRPCURL)
		if err != nil {
			return fmt.Errorf("connect worldchain rpc: %w", err)
		}
		defer worldClient.Close()

		var announcer events.Announcer
		if cfg.RedisAddr != "" {
			pub, err := publisher.New(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), logger)
			if err != nil {
				return fmt.Errorf("redis publisher: %w", err)
			}
			defer pub.Close()
			announcer = pub
		}

		table, err := events.AttestationTable(st, announcer, logger)
		if err != nil {
			return fmt.Errorf("attestation handlers: %w", err)
		}

		attestedTopic, err := events.TopicTogetherAttested()
		if err != nil {
			return err
		}

		togetherWatcher := watcher.New(watcher.Config{
			ID:          "together_watcher",
			StartBlock:  cfg.TogetherStartBlock,
			Interval:    cfg.Interval,
			Bounds:      bounds,
			HeadRefresh: cfg.HeadRefresh,
		}, worldClient, st, []watcher.Source{
			{Address: common.HexToAddress(cfg.TogetherContract), Topics: []common.Hash{attestedTopic}},
		}, table, logger)

		g.Go(func() error {
			return togetherWatcher.Run(gctx)
		})
	}

	logger.Info("castwatch start",
		zap.String("auction_contract", cfg.AuctionContract),
		zap.String("casts_contract", cfg.CastsContract),
		zap.Uint64("auction_start_block", cfg.AuctionStartBlock),
		zap.Bool("together_enabled", cfg.TogetherEnabled()),
		zap.Bool("announcements", cfg.RedisAddr != ""),
		zap.Duration("interval", cfg.Interval),
		zap.Uint64("initial_chunk", cfg.InitialChunk),
		zap.Uint64("max_chunk", cfg.MaxChunk),
	)

	return g.Wait()
}
