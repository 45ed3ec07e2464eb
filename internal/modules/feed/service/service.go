package service

import (
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/feeds"
	channelDomain "github.com/reshetovitsme/notify-relay/internal/modules/channel/domain"
	"github.com/reshetovitsme/notify-relay/internal/modules/message/domain"
	messageRepo "github.com/reshetovitsme/notify-relay/internal/modules/message/repository"
	"github.com/reshetovitsme/notify-relay/internal/shared/errors"
	"github.com/samber/oops"
)

// Channels reports which channels exist. The channel registry satisfies it.
type Channels interface {
	Has(id string) bool
}

// Service keeps the publish history of each channel and renders it as RSS
type Service struct {
	channels    Channels
	messageRepo messageRepo.Repository
	size        int

	mu     sync.Mutex
	lastID int64
	now    func() time.Time
}

// New creates a new feed service keeping at most size messages per channel.
// A size of zero disables history.
func New(channels Channels, messageRepo messageRepo.Repository, size int) *Service {
	return &Service{
		channels:    channels,
		messageRepo: messageRepo,
		size:        size,
		now:         time.Now,
	}
}

// Record appends text to the history of channelID and prunes old entries.
func (s *Service) Record(channelID, text string) error {
	channelID = channelDomain.NormalizeID(channelID)
	if s.size == 0 {
		return nil
	}

	date, id := s.next()
	msg := &domain.Message{ID: id, ChannelID: channelID, Text: text, Date: date}
	if err := s.messageRepo.SaveMessage(msg); err != nil {
		return oops.With("channel_id", channelID, "context", "failed to record message").Wrap(err)
	}

	if err := s.messageRepo.Prune(channelID, s.size); err != nil {
		slog.Warn("Failed to prune channel history", "channel_id", channelID, "error", err)
	}
	return nil
}

// Forget drops the history of a deleted channel.
func (s *Service) Forget(channelID string) error {
	channelID = channelDomain.NormalizeID(channelID)
	if err := s.messageRepo.DeleteMessages(channelID); err != nil {
		return oops.With("channel_id", channelID, "context", "failed to forget channel history").Wrap(err)
	}
	slog.Debug("Forgot channel history", "channel_id", channelID)
	return nil
}

// GenerateFeed generates an RSS feed for a channel
func (s *Service) GenerateFeed(channelID string, baseURL string) (*feeds.Feed, error) {
	channelID = channelDomain.NormalizeID(channelID)
	if !s.channels.Has(channelID) {
		return nil, oops.With("channel_id", channelID).Wrap(errors.ErrChannelNotFound)
	}

	messages, err := s.messageRepo.GetMessages(channelID, s.size)
	if err != nil {
		return nil, oops.With("channel_id", channelID, "context", "failed to get messages").Wrap(err)
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("Channel %s", shortID(channelID)),
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/feed/%s", baseURL, channelID)},
		Description: "Notifications published to the channel",
		Created:     s.now(),
	}

	for _, msg := range messages {
		feed.Items = append(feed.Items, s.messageToFeedItem(msg, feed.Link.Href))
	}
	if len(messages) > 0 {
		feed.Updated = messages[0].Date
	}

	return feed, nil
}

func (s *Service) messageToFeedItem(msg *domain.Message, link string) *feeds.Item {
	return &feeds.Item{
		Title:       truncate(msg.Text, 100),
		Link:        &feeds.Link{Href: link},
		Description: msg.Text,
		Content:     fmt.Sprintf("<p>%s</p>", html.EscapeString(msg.Text)),
		Created:     msg.Date,
		Id:          fmt.Sprintf("%s-%d", msg.ChannelID, msg.ID),
	}
}

// next returns the publish time and a strictly increasing message id.
func (s *Service) next() (time.Time, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := max(now.UnixNano(), s.lastID+1)
	s.lastID = id
	return now, id
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
