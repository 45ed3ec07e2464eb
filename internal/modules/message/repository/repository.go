package repository

import (
	"github.com/reshetovitsme/notify-relay/internal/modules/message/domain"
)

// Repository defines the interface for publish history persistence
type Repository interface {
	SaveMessage(message *domain.Message) error
	// GetMessages returns up to limit messages of a channel, newest first.
	GetMessages(channelID string, limit int) ([]*domain.Message, error)
	// Prune keeps only the newest keep messages of a channel.
	Prune(channelID string, keep int) error
	DeleteMessages(channelID string) error
}
