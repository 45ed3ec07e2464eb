package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/reshetovitsme/notify-relay/internal/modules/message/domain"
	"github.com/reshetovitsme/notify-relay/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// FileStorage implements Repository with one directory per channel and one
// file per message. Message ids are zero-padded so names sort by id.
type FileStorage struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStorage creates a new file-based message repository
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, oops.With("base_path", basePath, "context", "failed to create messages directory").Wrap(errors.IO(err))
	}

	return &FileStorage{basePath: basePath}, nil
}

func (s *FileStorage) SaveMessage(message *domain.Message) error {
	msgDir, err := s.channelDir(message.ChannelID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(msgDir, 0o755); err != nil {
		return oops.With("message_dir", msgDir, "context", "failed to create message directory").Wrap(errors.IO(err))
	}

	path := filepath.Join(msgDir, messageFileName(message.ID))
	data, err := json.MarshalIndent(message, "", "  ")
	if err != nil {
		return oops.With("channel_id", message.ChannelID, "message_id", message.ID, "context", "failed to marshal message").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return oops.With("channel_id", message.ChannelID, "message_id", message.ID).Wrap(errors.IO(err))
	}
	return nil
}

func (s *FileStorage) GetMessages(channelID string, limit int) ([]*domain.Message, error) {
	msgDir, err := s.channelDir(channelID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := messageFiles(msgDir)
	if err != nil {
		return nil, oops.With("channel_id", channelID, "message_dir", msgDir, "context", "failed to read messages directory").Wrap(errors.IO(err))
	}

	var messages []*domain.Message
	for i := len(names) - 1; i >= 0 && len(messages) < limit; i-- {
		data, err := os.ReadFile(filepath.Join(msgDir, names[i]))
		if err != nil {
			continue
		}

		var message domain.Message
		if err := json.Unmarshal(data, &message); err != nil {
			continue
		}

		messages = append(messages, &message)
	}

	return messages, nil
}

func (s *FileStorage) Prune(channelID string, keep int) error {
	msgDir, err := s.channelDir(channelID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := messageFiles(msgDir)
	if err != nil {
		return oops.With("channel_id", channelID, "context", "failed to read messages directory").Wrap(errors.IO(err))
	}
	if len(names) <= keep {
		return nil
	}

	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(msgDir, name)); err != nil && !os.IsNotExist(err) {
			return oops.With("channel_id", channelID, "file", name).Wrap(errors.IO(err))
		}
	}
	return nil
}

func (s *FileStorage) DeleteMessages(channelID string) error {
	msgDir, err := s.channelDir(channelID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(msgDir); err != nil {
		return oops.With("channel_id", channelID, "context", "failed to delete messages").Wrap(errors.IO(err))
	}
	return nil
}

func (s *FileStorage) channelDir(channelID string) (string, error) {
	if channelID == "" || channelID == "." || channelID == ".." || strings.ContainsAny(channelID, `/\`) {
		return "", oops.With("channel_id", channelID).Wrap(errors.Validation(fmt.Errorf("invalid channel id")))
	}
	return filepath.Join(s.basePath, channelID), nil
}

// messageFiles lists message file names in ascending id order. A missing
// directory means an empty history.
func messageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := lo.FilterMap(entries, func(entry os.DirEntry, _ int) (string, bool) {
		return entry.Name(), !entry.IsDir() && filepath.Ext(entry.Name()) == ".json"
	})
	slices.Sort(names)
	return names, nil
}

func messageFileName(id int64) string {
	return fmt.Sprintf("%020d.json", id)
}
