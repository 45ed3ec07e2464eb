package domain

import "time"

// Message is one publish recorded in a channel's history
type Message struct {
	ID        int64     `json:"id"`
	ChannelID string    `json:"channel_id"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
}
