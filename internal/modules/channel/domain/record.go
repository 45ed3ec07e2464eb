package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/reshetovitsme/notify-relay/internal/shared/errors"
	"github.com/samber/oops"
)

// Record is the persisted form of a Channel
type Record struct {
	ID            string  `json:"id"`
	CreatorID     int64   `json:"creatorId"`
	SubscriberIDs []int64 `json:"subscriberIds"`
}

// wireRecord distinguishes missing fields from zero values while decoding.
type wireRecord struct {
	ID            *string  `json:"id"`
	CreatorID     *int64   `json:"creatorId"`
	SubscriberIDs *[]int64 `json:"subscriberIds"`
}

func (c *Channel) ToRecord() Record {
	return Record{
		ID:            c.id,
		CreatorID:     c.creatorID,
		SubscriberIDs: c.SubscriberIDs(),
	}
}

// FromRecord rebuilds a channel from its record, validating the id.
func FromRecord(rec Record, sender Sender) (*Channel, error) {
	id := NormalizeID(rec.ID)
	if id == "" {
		return nil, errors.Validation(fmt.Errorf("record id is empty"))
	}
	if _, err := hex.DecodeString(id); err != nil {
		return nil, oops.With("channel_id", rec.ID).Wrap(errors.Validation(fmt.Errorf("record id is not hex: %w", err)))
	}

	subscriberIDs := rec.SubscriberIDs
	if subscriberIDs == nil {
		subscriberIDs = []int64{rec.CreatorID}
	}

	return newChannel(id, rec.CreatorID, subscriberIDs, sender), nil
}

func EncodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, oops.With("channel_id", rec.ID, "context", "failed to marshal channel").Wrap(err)
	}
	return data, nil
}

// DecodeRecord parses a persisted record. Wrong JSON types and missing
// id or creatorId fail with ErrValidation; unknown fields are ignored and a
// missing subscriberIds is left nil so FromRecord can default it.
func DecodeRecord(data []byte) (Record, error) {
	var wire wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return Record{}, errors.Validation(err)
	}
	if wire.ID == nil {
		return Record{}, errors.Validation(fmt.Errorf("record is missing id"))
	}
	if wire.CreatorID == nil {
		return Record{}, errors.Validation(fmt.Errorf("record is missing creatorId"))
	}

	rec := Record{ID: *wire.ID, CreatorID: *wire.CreatorID}
	if wire.SubscriberIDs != nil {
		rec.SubscriberIDs = *wire.SubscriberIDs
		if rec.SubscriberIDs == nil {
			rec.SubscriberIDs = []int64{}
		}
	}
	return rec, nil
}
