package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"castwatch/internal/config"
	"castwatch/internal/store"
)

func newAdminCmd() *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Operational maintenance commands",
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("db-url", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show watcher cursors and table counts",
		RunE:  runStatus,
	}
	statusCmd.Flags().String("db-url", "", "Postgres DSN")
	statusCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete a watcher cursor so it rescans from its start block",
		RunE:  runReset,
	}
	resetCmd.Flags().String("db-url", "", "Postgres DSN")
	resetCmd.Flags().String("id", "", "watcher id (auction_watcher, together_watcher)")
	resetCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Dump all tables to JSONL files",
		RunE:  runBackup,
	}
	backupCmd.Flags().String("db-url", "", "Postgres DSN")
	backupCmd.Flags().String("out", "./backups", "output directory")
	backupCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	wipeCmd := &cobra.Command{
		Use:   "wipe",
		Short: "Back up and then clear all domain tables",
		RunE:  runWipe,
	}
	wipeCmd.Flags().String("db-url", "", "Postgres DSN")
	wipeCmd.Flags().String("out", "./backups", "backup directory")
	wipeCmd.Flags().Bool("confirm", false, "actually delete rows")
	wipeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	adminCmd.AddCommand(migrateCmd, statusCmd, resetCmd, backupCmd, wipeCmd)

	return adminCmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := adminSetup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := adminSetup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer st.Close()

	cursors, err := st.ListCursors(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WATCHER\tLAST BLOCK\tCHUNK\tUPDATED")
	for _, c := range cursors {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
			c.ID, c.LastProcessed, c.ChunkSize, c.UpdatedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "TABLE\tROWS")
	for _, table := range store.DomainTables {
		n, err := st.CountRows(ctx, table)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", table, n)
	}
	return w.Flush()
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := adminSetup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		return fmt.Errorf("watcher id is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer st.Close()

	deleted, err := st.DeleteCursor(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		logger.Warn("no cursor for id", zap.String("id", id))
		return nil
	}
	logger.Info("cursor deleted", zap.String("id", id))
	return nil
}

func runBackup(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := adminSetup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dir, _ := cmd.Flags().GetString("out")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer st.Close()

	return backupTables(ctx, st, dir, logger)
}

func runWipe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := adminSetup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	confirm, _ := cmd.Flags().GetBool("confirm")
	if !confirm {
		return fmt.Errorf("refusing to wipe without --confirm")
	}
	dir, _ := cmd.Flags().GetString("out")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer st.Close()

	if err := backupTables(ctx, st, dir, logger); err != nil {
		return fmt.Errorf("pre-wipe backup: %w", err)
	}

	for _, table := range store.DomainTables {
		n, err := st.DeleteAllRows(ctx, table)
		if err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
		logger.Info("table cleared", zap.String("table", table), zap.Int64("rows", n))
	}
	return nil
}

// adminSetup loads config and builds the logger shared by every admin
// subcommand. Callers still own logger.Sync.
func adminSetup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}

	if cfg.DatabaseURL == "" {
		logger.Sync()
		return config.Config{}, nil, fmt.Errorf("db url is required")
	}
	return cfg, logger, nil
}

func backupTables(ctx context.Context, st *store.Store, dir string, logger *zap.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")

	for _, table := range store.Tables {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.jsonl", table, stamp))
		f, err := os.Create(path)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(f)
		rows := 0
		err = st.DumpTable(ctx, table, func(row map[string]any) error {
			rows++
			return enc.Encode(row)
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("dump %s: %w", table, err)
		}

		logger.Info("table dumped",
			zap.String("table", table), zap.Int("rows", rows), zap.String("path", path))
	}
	return nil
}
