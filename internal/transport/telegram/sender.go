package telegram

import (
	"context"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/notify-relay/internal/modules/channel/domain"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

// BotSender delivers messages through the Telegram Bot API.
// The bot is bound after construction because it needs the update handler,
// which in turn needs a sender.
type BotSender struct {
	mu  sync.RWMutex
	bot *bot.Bot
}

func NewBotSender() *BotSender {
	return &BotSender{}
}

// SetBot sets the bot instance used for sending
func (s *BotSender) SetBot(b *bot.Bot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bot = b
}

func (s *BotSender) Send(ctx context.Context, chatID int64, text string) error {
	s.mu.RLock()
	b := s.bot
	s.mu.RUnlock()

	if b == nil {
		return oops.With("chat_id", chatID).Errorf("telegram bot is not initialized")
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		return oops.With("chat_id", chatID, "context", "failed to send message").Wrap(err)
	}
	return nil
}

// RateLimitedSender keeps outgoing traffic under the Bot API flood limit.
type RateLimitedSender struct {
	next    domain.Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender allows perSecond messages per second through next.
func NewRateLimitedSender(next domain.Sender, perSecond float64) *RateLimitedSender {
	return &RateLimitedSender{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond))),
	}
}

func (s *RateLimitedSender) Send(ctx context.Context, chatID int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return oops.With("chat_id", chatID, "context", "rate limiter").Wrap(err)
	}
	return s.next.Send(ctx, chatID, text)
}
