package di

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	channelDomain "github.com/reshetovitsme/notify-relay/internal/modules/channel/domain"
	channelRepo "github.com/reshetovitsme/notify-relay/internal/modules/channel/repository"
	channelService "github.com/reshetovitsme/notify-relay/internal/modules/channel/service"
	commandService "github.com/reshetovitsme/notify-relay/internal/modules/command/service"
	feedService "github.com/reshetovitsme/notify-relay/internal/modules/feed/service"
	messageRepo "github.com/reshetovitsme/notify-relay/internal/modules/message/repository"
	"github.com/reshetovitsme/notify-relay/internal/shared/config"
	httpServer "github.com/reshetovitsme/notify-relay/internal/transport/http"
	"github.com/reshetovitsme/notify-relay/internal/transport/telegram"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
)

const shutdownTimeout = 10 * time.Second

// Setup initializes the dependency injection container
func Setup(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)

	// Register Channel Repository
	do.Provide(injector, func(i do.Injector) (channelRepo.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return channelRepo.NewFileStorage(cfg.ChannelsPath()), nil
	})

	// Register Message Repository
	do.Provide(injector, func(i do.Injector) (messageRepo.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo, err := messageRepo.NewFileStorage(cfg.MessagesPath())
		if err != nil {
			return nil, oops.With("storage_path", cfg.StoragePath, "context", "failed to initialize message repository").Wrap(err)
		}
		return repo, nil
	})

	// The bot sender exists before the bot so the channel registry can be
	// built first; the bot is bound to it once created.
	do.Provide(injector, func(i do.Injector) (*telegram.BotSender, error) {
		return telegram.NewBotSender(), nil
	})

	// Register outgoing Sender shared by fan-out and replies
	do.Provide(injector, func(i do.Injector) (channelDomain.Sender, error) {
		cfg := do.MustInvoke[*config.Config](i)
		botSender := do.MustInvoke[*telegram.BotSender](i)
		return telegram.NewRateLimitedSender(botSender, cfg.SendRate), nil
	})

	// Register Channel Service
	do.Provide(injector, func(i do.Injector) (*channelService.Service, error) {
		repo := do.MustInvoke[channelRepo.Repository](i)
		sender := do.MustInvoke[channelDomain.Sender](i)

		service := channelService.New(repo, sender)
		if err := service.Initialize(); err != nil {
			return nil, oops.With("context", "failed to initialize channel registry").Wrap(err)
		}
		return service, nil
	})

	// Register Snapshotter
	do.Provide(injector, func(i do.Injector) (*channelService.Snapshotter, error) {
		cfg := do.MustInvoke[*config.Config](i)
		channels := do.MustInvoke[*channelService.Service](i)
		return channelService.NewSnapshotter(channels, cfg.SaveSchedule)
	})

	// Register Feed Service
	do.Provide(injector, func(i do.Injector) (*feedService.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		channels := do.MustInvoke[*channelService.Service](i)
		msgRepo := do.MustInvoke[messageRepo.Repository](i)
		return feedService.New(channels, msgRepo, cfg.FeedSize), nil
	})

	do.Provide(injector, func(i do.Injector) (*commandService.Dispatcher, error) {
		return commandService.NewDispatcher(), nil
	})

	// Register Commands; a bad command definition stops startup
	do.Provide(injector, func(i do.Injector) (*telegram.Commands, error) {
		channels := do.MustInvoke[*channelService.Service](i)
		feeds := do.MustInvoke[*feedService.Service](i)
		dispatcher := do.MustInvoke[*commandService.Dispatcher](i)

		commands := telegram.NewCommands(channels, feeds, dispatcher)
		if err := commands.Register(); err != nil {
			return nil, oops.With("context", "failed to register commands").Wrap(err)
		}
		return commands, nil
	})

	// Register Telegram Handler
	do.Provide(injector, func(i do.Injector) (*telegram.Handler, error) {
		do.MustInvoke[*telegram.Commands](i)
		dispatcher := do.MustInvoke[*commandService.Dispatcher](i)
		sender := do.MustInvoke[channelDomain.Sender](i)
		return telegram.New(dispatcher, sender), nil
	})

	// Register Bot
	do.Provide(injector, func(i do.Injector) (*bot.Bot, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if err := cfg.RequireBotToken(); err != nil {
			return nil, err
		}
		handler := do.MustInvoke[*telegram.Handler](i)

		opts := []bot.Option{
			bot.WithDefaultHandler(handler.HandleUpdate),
			bot.WithServerURL(cfg.TelegramAPIURL),
		}
		if cfg.WebhookSecret != "" {
			opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
		}

		b, err := bot.New(cfg.TelegramBotToken, opts...)
		if err != nil {
			return nil, oops.With("context", "failed to create telegram bot").Wrap(err)
		}

		do.MustInvoke[*telegram.BotSender](i).SetBot(b)

		// Group chats address commands as /name@username
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if me, err := b.GetMe(ctx); err != nil {
			slog.Warn("Failed to get bot username, accepting commands for any bot", "error", err)
		} else {
			do.MustInvoke[*commandService.Dispatcher](i).SetUsername(me.Username)
		}
		return b, nil
	})

	// Register HTTP Server
	do.Provide(injector, func(i do.Injector) (*httpServer.Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		channels := do.MustInvoke[*channelService.Service](i)
		feeds := do.MustInvoke[*feedService.Service](i)
		server := httpServer.New(cfg, channels, feeds)
		server.SetLogger(slog.Default())
		return server, nil
	})

	return injector
}

// Shutdown stops the HTTP server and the snapshot schedule, then saves
// every channel. The bot stops with the context passed to its Start.
func Shutdown(injector do.Injector) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error

	if server, err := do.Invoke[*httpServer.Server](injector); err == nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, oops.With("context", "http server shutdown").Wrap(err))
		}
	}

	if snapshotter, err := do.Invoke[*channelService.Snapshotter](injector); err == nil {
		snapshotter.Stop(ctx)
	}

	if channels, err := do.Invoke[*channelService.Service](injector); err == nil {
		if err := channels.SaveAll(); err != nil {
			errs = append(errs, oops.With("context", "final channel save").Wrap(err))
		}
		slog.Info("Saved channels", "count", len(channels.IDs()))
	}

	return stderrors.Join(errs...)
}
