package service

import (
	stderrors "errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/reshetovitsme/notify-relay/internal/modules/channel/domain"
	channelRepo "github.com/reshetovitsme/notify-relay/internal/modules/channel/repository"
	"github.com/reshetovitsme/notify-relay/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// Service is the channel registry: the authoritative in-memory map of
// channels backed by one record per channel in the repository.
//
// Mutations are in memory only; callers persist them with Save. Saves are
// serialized, so the record on disk always reflects a snapshot at least as
// new as the one written by any earlier Save.
type Service struct {
	repo   channelRepo.Repository
	sender domain.Sender

	mu       sync.RWMutex
	channels map[string]*domain.Channel

	saveMu sync.Mutex
}

// New creates a channel registry. sender is bound to every channel it creates or loads.
func New(repo channelRepo.Repository, sender domain.Sender) *Service {
	return &Service{
		repo:     repo,
		sender:   sender,
		channels: make(map[string]*domain.Channel),
	}
}

// Initialize creates the storage folder, or loads every record when it
// already exists. Call it once at startup.
func (s *Service) Initialize() error {
	slog.Debug("Initializing channel registry")

	created, err := s.repo.Init()
	if err != nil {
		return oops.With("context", "failed to initialize channel storage").Wrap(err)
	}

	if !created {
		channels, err := s.LoadAll(true)
		if err != nil {
			return err
		}
		slog.Info("Loaded channels", "count", len(channels))
	}

	slog.Debug("Channel registry initialized")
	return nil
}

// LoadAll reads every stored record into memory. With deleteInvalid, a
// record that fails validation is logged and its file deleted, and any other
// per-record failure is logged and skipped; otherwise the first failure
// aborts the load.
func (s *Service) LoadAll(deleteInvalid bool) (map[string]*domain.Channel, error) {
	ids, err := s.repo.List()
	if err != nil {
		return nil, err
	}

	loaded := make(map[string]*domain.Channel, len(ids))
	for _, id := range ids {
		channel, err := s.Load(id)
		if err == nil {
			loaded[channel.ID()] = channel
			continue
		}

		if !deleteInvalid {
			return nil, oops.With("channel_id", id).Wrap(err)
		}
		if !stderrors.Is(err, errors.ErrValidation) {
			slog.Error("Failed to read channel, skipping", "channel_id", id, "error", err)
			continue
		}

		slog.Warn("Failed to read channel, deleting", "channel_id", id, "error", err)
		if err := s.repo.Delete(id); err != nil {
			slog.Error("Failed to delete invalid channel", "channel_id", id, "error", err)
			continue
		}
		slog.Warn("Deleted invalid channel", "channel_id", id)
	}

	return loaded, nil
}

// Load reads the record for id and upserts it into memory.
func (s *Service) Load(id string) (*domain.Channel, error) {
	id = domain.NormalizeID(id)

	data, err := s.repo.Read(id)
	if err != nil {
		return nil, err
	}

	rec, err := domain.DecodeRecord(data)
	if err != nil {
		return nil, oops.With("channel_id", id).Wrap(err)
	}
	if domain.NormalizeID(rec.ID) != id {
		return nil, oops.With("channel_id", id, "record_id", rec.ID).
			Wrap(errors.Validation(stderrors.New("record id does not match its file name")))
	}

	channel, err := domain.FromRecord(rec, s.sender)
	if err != nil {
		return nil, oops.With("channel_id", id).Wrap(err)
	}

	s.mu.Lock()
	s.channels[id] = channel
	s.mu.Unlock()

	slog.Debug("Loaded channel", "channel_id", id)
	return channel, nil
}

// Save writes the in-memory channel for id, or deletes its record when the
// id is no longer in memory. This is how deletions become durable.
func (s *Service) Save(id string) error {
	id = domain.NormalizeID(id)

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	channel, ok := s.Get(id)
	if !ok {
		slog.Debug("Removing channel record", "channel_id", id)
		if err := s.repo.Delete(id); err != nil {
			slog.Error("Failed to remove channel record", "channel_id", id, "error", err)
			return err
		}
		return nil
	}

	data, err := domain.EncodeRecord(channel.ToRecord())
	if err != nil {
		return err
	}

	if err := s.repo.Write(id, data); err != nil {
		slog.Error("Failed to save channel", "channel_id", id, "error", err)
		return err
	}

	slog.Debug("Saved channel", "channel_id", id)
	return nil
}

// SaveAll saves every channel currently in memory and returns every failure joined.
func (s *Service) SaveAll() error {
	var errs []error
	for _, id := range s.IDs() {
		if err := s.Save(id); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Create makes a new channel owned by creatorID and, if persist is set, saves it.
// On a failed save the channel stays in memory and the error is returned.
func (s *Service) Create(creatorID int64, persist bool) (*domain.Channel, error) {
	channel, err := domain.New(creatorID, s.sender)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.channels[channel.ID()] = channel
	s.mu.Unlock()

	slog.Info("Created channel", "channel_id", channel.ID(), "creator_id", creatorID)

	if persist {
		if err := s.Save(channel.ID()); err != nil {
			return channel, err
		}
	}
	return channel, nil
}

// Delete removes id from memory only and reports whether it existed.
// Call Save(id) afterwards to make the deletion durable, or use Remove.
func (s *Service) Delete(id string) bool {
	id = domain.NormalizeID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[id]; !ok {
		return false
	}
	delete(s.channels, id)
	return true
}

// Remove deletes id from memory and persists the deletion. If the save
// fails the channel is gone from memory and a later Save(id) retries the
// file removal.
func (s *Service) Remove(id string) (bool, error) {
	if !s.Delete(id) {
		return false, nil
	}
	slog.Info("Deleted channel", "channel_id", domain.NormalizeID(id))
	return true, s.Save(id)
}

// Restore puts channel back into memory, undoing a Delete whose save failed.
func (s *Service) Restore(channel *domain.Channel) {
	s.mu.Lock()
	s.channels[channel.ID()] = channel
	s.mu.Unlock()
}

func (s *Service) Get(id string) (*domain.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.channels[domain.NormalizeID(id)]
	return channel, ok
}

func (s *Service) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// IDs returns the sorted ids of all channels in memory.
func (s *Service) IDs() []string {
	s.mu.RLock()
	ids := lo.Keys(s.channels)
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// All returns every channel in memory, ordered by id.
func (s *Service) All() []*domain.Channel {
	s.mu.RLock()
	channels := lo.Values(s.channels)
	s.mu.RUnlock()

	slices.SortFunc(channels, func(a, b *domain.Channel) int {
		return strings.Compare(a.ID(), b.ID())
	})
	return channels
}

// SubscribedBy returns the channels userID is subscribed to, ordered by id.
func (s *Service) SubscribedBy(userID int64) []*domain.Channel {
	return lo.Filter(s.All(), func(channel *domain.Channel, _ int) bool {
		return channel.HasSubscriber(userID)
	})
}
