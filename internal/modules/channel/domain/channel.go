package domain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/samber/oops"
)

// IDByteLength is the number of random bytes behind a channel id.
const IDByteLength = 64

// Sender delivers a text message to a chat. The chat transport implements it.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Channel is a notification topic with one creator and a set of subscribers
type Channel struct {
	id        string
	creatorID int64
	sender    Sender

	mu          sync.RWMutex
	subscribers map[int64]struct{}
}

// New creates a channel with a fresh random id. The creator is its first subscriber.
func New(creatorID int64, sender Sender) (*Channel, error) {
	buf := make([]byte, IDByteLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, oops.With("creator_id", creatorID).Wrapf(err, "failed to generate channel id")
	}

	return newChannel(hex.EncodeToString(buf), creatorID, []int64{creatorID}, sender), nil
}

func newChannel(id string, creatorID int64, subscriberIDs []int64, sender Sender) *Channel {
	subscribers := make(map[int64]struct{}, len(subscriberIDs))
	for _, subscriberID := range subscriberIDs {
		subscribers[subscriberID] = struct{}{}
	}

	return &Channel{
		id:          NormalizeID(id),
		creatorID:   creatorID,
		sender:      sender,
		subscribers: subscribers,
	}
}

// NormalizeID turns a user- or storage-supplied id into its map key form.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) CreatorID() int64 {
	return c.creatorID
}

// SubscriberIDs returns a sorted copy of the subscriber set
func (c *Channel) SubscriberIDs() []int64 {
	c.mu.RLock()
	ids := lo.Keys(c.subscribers)
	c.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (c *Channel) HasSubscriber(userID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.subscribers[userID]
	return ok
}

// AddSubscriber reports false when userID was already subscribed.
func (c *Channel) AddSubscriber(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscribers[userID]; ok {
		return false
	}
	c.subscribers[userID] = struct{}{}
	return true
}

// RemoveSubscriber reports false when userID was not subscribed.
func (c *Channel) RemoveSubscriber(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscribers[userID]; !ok {
		return false
	}
	delete(c.subscribers, userID)
	return true
}

// Publish sends message to every subscriber once. Failures are logged per
// subscriber and never stop the fan-out; once started it ignores cancellation of ctx.
func (c *Channel) Publish(ctx context.Context, message string) {
	ctx = context.WithoutCancel(ctx)
	subscriberIDs := c.SubscriberIDs()

	slog.Debug("Publishing to channel", "channel_id", c.id, "subscribers", len(subscriberIDs))

	for _, subscriberID := range subscriberIDs {
		if c.sender == nil {
			slog.Error("Channel has no sender", "channel_id", c.id)
			return
		}
		if err := c.sender.Send(ctx, subscriberID, message); err != nil {
			slog.Warn("Failed to deliver message", "channel_id", c.id, "subscriber_id", subscriberID, "error", err)
		}
	}
}
