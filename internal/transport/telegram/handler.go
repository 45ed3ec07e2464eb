package telegram

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	channelDomain "github.com/reshetovitsme/notify-relay/internal/modules/channel/domain"
	commandDomain "github.com/reshetovitsme/notify-relay/internal/modules/command/domain"
)

// Dispatcher routes one inbound chat message to a command.
type Dispatcher interface {
	Dispatch(ctx context.Context, c commandDomain.Context)
}

// Handler handles Telegram bot interactions
type Handler struct {
	dispatcher Dispatcher
	replies    channelDomain.Sender
}

// New creates a new Telegram handler. Replies go through replies so they
// share the rate limit with channel fan-out.
func New(dispatcher Dispatcher, replies channelDomain.Sender) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		replies:    replies,
	}
}

// HandleUpdate processes incoming updates
func (h *Handler) HandleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}

	slog.Debug("Received message", "user_id", msg.From.ID, "chat_id", msg.Chat.ID)

	h.dispatcher.Dispatch(ctx, &updateContext{
		userID: msg.From.ID,
		chatID: msg.Chat.ID,
		text:   msg.Text,
		sender: h.replies,
	})
}

// updateContext is the dispatch context of one Telegram message.
type updateContext struct {
	userID int64
	chatID int64
	text   string
	sender channelDomain.Sender
}

func (c *updateContext) UserID() int64 { return c.userID }
func (c *updateContext) ChatID() int64 { return c.chatID }
func (c *updateContext) Text() string  { return c.text }

func (c *updateContext) Reply(ctx context.Context, text string) error {
	return c.sender.Send(ctx, c.chatID, text)
}
