package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/notify-relay/internal/di"
	channelRepo "github.com/reshetovitsme/notify-relay/internal/modules/channel/repository"
	channelService "github.com/reshetovitsme/notify-relay/internal/modules/channel/service"
	"github.com/reshetovitsme/notify-relay/internal/shared/config"
	httpServer "github.com/reshetovitsme/notify-relay/internal/transport/http"
	"github.com/reshetovitsme/notify-relay/internal/transport/telegram"
	"github.com/samber/do/v2"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:          "notify-relay",
		Short:        "Relay published notifications to Telegram subscribers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				slog.Error("Failed to load config", "error", err)
				return err
			}
			cfg = loaded
			setupLogging(cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate every stored channel record without repairing the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return check(cfg)
		},
	})

	return root
}

// setupLogging writes everything at the configured level to stdout and
// errors as JSON to stderr.
func setupLogging(cfg *config.Config) {
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})
	jsonHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})

	logger := slog.New(slogmulti.Fanout(textHandler, jsonHandler))
	slog.SetDefault(logger)
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	injector := di.Setup(cfg)
	defer func() {
		if err := di.Shutdown(injector); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	b, err := do.Invoke[*bot.Bot](injector)
	if err != nil {
		slog.Error("Failed to start bot", "error", err)
		return err
	}
	server := do.MustInvoke[*httpServer.Server](injector)
	commands := do.MustInvoke[*telegram.Commands](injector)
	snapshotter := do.MustInvoke[*channelService.Snapshotter](injector)

	if err := commands.SyncMenu(ctx, b); err != nil {
		slog.Warn("Failed to publish command menu", "error", err)
	}

	if cfg.WebhookURL != "" {
		if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:         cfg.WebhookURL,
			SecretToken: cfg.WebhookSecret,
		}); err != nil {
			slog.Error("Failed to set webhook", "url", cfg.WebhookURL, "error", err)
			return err
		}
		server.SetWebhookHandler(b.WebhookHandler())
		go b.StartWebhook(ctx)
		slog.Info("Receiving updates by webhook", "path", cfg.WebhookPath)
	} else {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
			slog.Warn("Failed to delete webhook", "error", err)
		}
		go b.Start(ctx)
		slog.Info("Receiving updates by long polling")
	}

	snapshotter.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	slog.Info("Application started", "port", cfg.HTTPPort, "app_env", cfg.AppEnv)
	slog.Info("Press Ctrl+C to stop")

	select {
	case <-ctx.Done():
		slog.Info("Shutting down...")
		return nil
	case err := <-serverErr:
		if err != nil {
			slog.Error("HTTP server failed", "error", err)
		}
		return err
	}
}

func check(cfg *config.Config) error {
	repo := channelRepo.NewFileStorage(cfg.ChannelsPath())
	channels, err := channelService.New(repo, nil).LoadAll(false)
	if err != nil {
		slog.Error("Channel store is invalid", "path", repo.Path(), "error", err)
		return err
	}

	slog.Info("Channel store is valid", "path", repo.Path(), "channels", len(channels))
	return nil
}
