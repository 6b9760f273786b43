package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"castwatch/internal/api"
	"castwatch/internal/config"
	"castwatch/internal/ratelimit"
	"castwatch/internal/store"
)

func runServe(cmd *cobra.Command, _ []string) error {
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

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer st.Close()

	limiter := ratelimit.NewPerKey(cfg.RPCProxyPerMinute)
	defer limiter.Stop()

	upstreams := make(map[string]string)
	if cfg.BaseRPCURL != "" {
		upstreams["base"] = cfg.BaseRPCURL
	}
	if cfg.EthRPCURL != "" {
		upstreams["ethereum"] = cfg.EthRPCURL
	}
	if cfg.WorldRPCURL != "" {
		upstreams["worldchain"] = cfg.WorldRPCURL
	}

	networks := make([]string, 0, len(upstreams))
	for name := range upstreams {
		networks = append(networks, name)
	}
	sort.Strings(networks)

	handler := api.NewHandler(st, limiter, upstreams, cfg.PendingExpiry, logger)
	server := api.NewServer(handler, cfg.ServerPort, cfg.AllowedOrigins, logger)

	logger.Info("api start",
		zap.Int("port", cfg.ServerPort),
		zap.Strings("networks", networks),
		zap.Int("rpc_per_minute", cfg.RPCProxyPerMinute),
		zap.Duration("pending_expiry", cfg.PendingExpiry),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
	)

	return server.Run(ctx)
}
