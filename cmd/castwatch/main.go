package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "castwatch",
		Short:        "Collectible cast auction and together watcher",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the chain watchers",
		RunE:  runWatch,
	}

	watchCmd.Flags().String("db-url", "", "Postgres DSN")
	watchCmd.Flags().String("base-rpc-url", "https://mainnet.base.org", "Base RPC URL")
	watchCmd.Flags().String("world-rpc-url", "", "Worldchain RPC URL")
	watchCmd.Flags().String("auction-contract", "0x1108F177596f7A2a913ABf6C208FACEf152C3d8c", "auction contract address")
	watchCmd.Flags().String("casts-contract", "0xc011Ec7Ca575D4f0a2eDA595107aB104c7Af7A09", "collectible casts contract address")
	watchCmd.Flags().String("together-contract", "", "together contract address (empty disables the together watcher)")
	watchCmd.Flags().Uint64("auction-start-block", 33200642, "auction watcher deploy block")
	watchCmd.Flags().Uint64("together-start-block", 1, "together watcher deploy block")
	watchCmd.Flags().Duration("interval", 30*time.Second, "poll interval once caught up")
	watchCmd.Flags().Uint64("initial-chunk", 500, "initial blocks per range")
	watchCmd.Flags().Uint64("min-chunk", 125, "chunk floor")
	watchCmd.Flags().Uint64("max-chunk", 4000, "chunk ceiling")
	watchCmd.Flags().Int("head-refresh", 10, "refresh chain head every N ranges")
	watchCmd.Flags().String("redis-addr", "", "Redis address for attestation announcements (empty disables)")
	watchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(watchCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	serveCmd.Flags().String("db-url", "", "Postgres DSN")
	serveCmd.Flags().Int("port", 3000, "listen port")
	serveCmd.Flags().StringSlice("allowed-origins", nil, "CORS origins (comma-separated, empty allows all)")
	serveCmd.Flags().Int("rpc-per-minute", 300, "RPC proxy requests per minute per client IP")
	serveCmd.Flags().String("base-rpc-url", "https://mainnet.base.org", "Base RPC URL")
	serveCmd.Flags().String("eth-rpc-url", "https://eth.llamarpc.com", "Ethereum RPC URL")
	serveCmd.Flags().String("world-rpc-url", "", "Worldchain RPC URL")
	serveCmd.Flags().Duration("pending-expiry", 10*time.Minute, "pending connection TTL")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	matchCmd := &cobra.Command{
		Use:   "match",
		Short: "Run the connection matcher",
		RunE:  runMatch,
	}

	matchCmd.Flags().String("db-url", "", "Postgres DSN")
	matchCmd.Flags().String("world-rpc-url", "", "Worldchain RPC URL")
	matchCmd.Flags().String("together-contract", "", "together contract address")
	matchCmd.Flags().String("signer-key", "", "hex private key for attestation submission")
	matchCmd.Flags().Duration("match-interval", 5*time.Second, "match poll cadence")
	matchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(matchCmd)

	root.AddCommand(newAdminCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
