package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/app"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/log"
)

type flags struct {
	configPath string
	addr       string
	logLevel   string
	dbPath     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "roomchat",
		Short:         "Real-time room chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&f.addr, "addr", "", "HTTP listen address")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&f.dbPath, "db", "", "SQLite database path")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context(), f)
		},
	})

	return root
}

// loadConfig reads the config file and env, then applies command-line overrides.
func loadConfig(f flags) (*config.Config, error) {
	bootLogger := log.New("info")

	cfg, path, err := config.Load(bootLogger, f.configPath)
	if err != nil {
		return nil, err
	}
	cfg.UpdateFrom(config.Config{
		Addr:         f.addr,
		LogLevel:     f.logLevel,
		DatabasePath: f.dbPath,
	})
	bootLogger.Debug().Str("path", path).Msg("config loaded")
	return &cfg, nil
}

func serve(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting roomchat server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrate(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel)

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema applied")
	return nil
}
