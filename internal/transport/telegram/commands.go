package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	channelDomain "github.com/reshetovitsme/notify-relay/internal/modules/channel/domain"
	channelService "github.com/reshetovitsme/notify-relay/internal/modules/channel/service"
	"github.com/reshetovitsme/notify-relay/internal/modules/command/domain"
	commandService "github.com/reshetovitsme/notify-relay/internal/modules/command/service"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

const (
	fallbackReply = "Я вас не понял.\nЧтобы узнать, что я умею введите /help"
	failureReply  = "Не удалось сохранить изменения. Попробуйте позже."
)

// History drops the publish history of deleted channels.
type History interface {
	Forget(channelID string) error
}

// Commands is the chat command set of the bot.
type Commands struct {
	channels   *channelService.Service
	history    History
	dispatcher *commandService.Dispatcher
}

func NewCommands(channels *channelService.Service, history History, dispatcher *commandService.Dispatcher) *Commands {
	return &Commands{
		channels:   channels,
		history:    history,
		dispatcher: dispatcher,
	}
}

// Register binds every command and the fallback to the dispatcher.
func (c *Commands) Register() error {
	options := []domain.Options{
		{Name: "help", Description: "вывести справку", Action: c.help},
		{Name: "start", Description: "начать работу с ботом", Action: c.help},
		{Name: "create", Description: "создать канал уведомлений", Action: c.create},
		{Name: "delete", Hint: "delete <ID канала>", Description: "удалить канал уведомлений", MinArgs: 1, MaxArgs: 1, Action: c.delete},
		{Name: "sub", Hint: "sub <ID канала>", Description: "подписаться на канал уведомлений", MinArgs: 1, MaxArgs: 1, Action: c.sub},
		{Name: "unsub", Hint: "unsub <ID канала>", Description: "отписаться от канала уведомлений", MinArgs: 1, MaxArgs: 1, Action: c.unsub},
		{Name: "listsub", Description: "показать ваши подписки", Action: c.listSubscriptions},
	}

	for _, opts := range options {
		cmd, err := domain.NewCommand(opts)
		if err != nil {
			return err
		}
		c.dispatcher.Register(cmd)
	}

	c.dispatcher.SetFallback(func(ctx context.Context, dc domain.Context, _ []string) error {
		return dc.Reply(ctx, fallbackReply)
	})

	slog.Debug("Registered commands", "count", len(options))
	return nil
}

// SyncMenu publishes the registered commands as the bot's command menu.
func (c *Commands) SyncMenu(ctx context.Context, b *bot.Bot) error {
	commands := lo.Map(c.dispatcher.Commands(), func(cmd *domain.Command, _ int) models.BotCommand {
		return models.BotCommand{Command: cmd.Name, Description: cmd.Description}
	})

	if _, err := b.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: commands}); err != nil {
		return oops.With("context", "failed to set bot commands").Wrap(err)
	}
	return nil
}

func (c *Commands) help(ctx context.Context, dc domain.Context, _ []string) error {
	return dc.Reply(ctx, c.dispatcher.HelpText())
}

func (c *Commands) create(ctx context.Context, dc domain.Context, _ []string) error {
	channel, err := c.channels.Create(dc.UserID(), true)
	if err != nil {
		slog.Error("Failed to create channel", "user_id", dc.UserID(), "error", err)
		if channel != nil {
			c.channels.Delete(channel.ID())
		}
		return dc.Reply(ctx, "Не удалось создать канал. Попробуйте позже.")
	}

	return dc.Reply(ctx, fmt.Sprintf("Канал уведомлений создан.\nID канала: %s\n\nВы подписаны на него автоматически.", channel.ID()))
}

func (c *Commands) delete(ctx context.Context, dc domain.Context, args []string) error {
	channel, ok := c.channels.Get(args[0])
	if !ok {
		return dc.Reply(ctx, notFound(args[0]))
	}
	if channel.CreatorID() != dc.UserID() {
		return dc.Reply(ctx, "Удалить канал может только его создатель.")
	}

	if _, err := c.channels.Remove(channel.ID()); err != nil {
		slog.Error("Failed to delete channel", "channel_id", channel.ID(), "error", err)
		c.channels.Restore(channel)
		return dc.Reply(ctx, failureReply)
	}

	if err := c.history.Forget(channel.ID()); err != nil {
		slog.Warn("Failed to forget channel history", "channel_id", channel.ID(), "error", err)
	}

	return dc.Reply(ctx, fmt.Sprintf("Канал %s удален.", channel.ID()))
}

func (c *Commands) sub(ctx context.Context, dc domain.Context, args []string) error {
	channel, ok := c.channels.Get(args[0])
	if !ok {
		return dc.Reply(ctx, notFound(args[0]))
	}

	if !channel.AddSubscriber(dc.UserID()) {
		return dc.Reply(ctx, fmt.Sprintf("Вы уже подписаны на канал %s.", channel.ID()))
	}

	if err := c.channels.Save(channel.ID()); err != nil {
		channel.RemoveSubscriber(dc.UserID())
		return dc.Reply(ctx, failureReply)
	}

	return dc.Reply(ctx, fmt.Sprintf("Вы подписались на канал %s.", channel.ID()))
}

func (c *Commands) unsub(ctx context.Context, dc domain.Context, args []string) error {
	channel, ok := c.channels.Get(args[0])
	if !ok {
		return dc.Reply(ctx, notFound(args[0]))
	}

	if !channel.RemoveSubscriber(dc.UserID()) {
		return dc.Reply(ctx, fmt.Sprintf("Вы не подписаны на канал %s.", channel.ID()))
	}

	if err := c.channels.Save(channel.ID()); err != nil {
		channel.AddSubscriber(dc.UserID())
		return dc.Reply(ctx, failureReply)
	}

	return dc.Reply(ctx, fmt.Sprintf("Вы отписались от канала %s.", channel.ID()))
}

func (c *Commands) listSubscriptions(ctx context.Context, dc domain.Context, _ []string) error {
	channels := c.channels.SubscribedBy(dc.UserID())
	if len(channels) == 0 {
		return dc.Reply(ctx, "У вас нет подписок.")
	}

	lines := lo.Map(channels, func(channel *channelDomain.Channel, _ int) string {
		if channel.CreatorID() == dc.UserID() {
			return channel.ID() + " (создатель)"
		}
		return channel.ID()
	})

	return dc.Reply(ctx, "Ваши подписки:\n\n"+strings.Join(lines, "\n"))
}

func notFound(id string) string {
	return fmt.Sprintf("Канал %s не найден.", id)
}
