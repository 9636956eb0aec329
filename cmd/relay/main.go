package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/channel-relay/internal/app"
	"github.com/samvad-hq/channel-relay/internal/config"
	"github.com/samvad-hq/channel-relay/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Repost monitored Telegram channel posts to a destination chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(); err != nil {
				fmt.Fprintf(os.Stderr, "relay start failed: %v\n", err)
				return err
			}
			return nil
		},
	}
	root.AddCommand(channelsCmd())
	return root
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("relay starting", "config", map[string]any{
		"app_name":        cfg.AppName,
		"env":             cfg.Env,
		"channels_file":   cfg.ChannelsFile,
		"publishers_file": cfg.PublishersFile,
		"storage_type":    cfg.StorageType,
		"flush_window":    cfg.FlushWindow.String(),
		"markup_percent":  cfg.MarkupPercent,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay, err := app.NewRelay(ctx, cfg, logger.New())
	if err != nil {
		logger.ErrorObj("failed to initialize relay", "error", err)
		return err
	}

	if err := relay.Run(ctx); err != nil {
		return fmt.Errorf("relay run: %w", err)
	}

	return nil
}
