package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/reshetovitsme/notify-relay/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

const recordExt = ".json"

// FileStorage implements Repository with one {id}.json file per channel
type FileStorage struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStorage creates a file-based channel repository rooted at basePath.
// Nothing touches the disk until Init.
func NewFileStorage(basePath string) *FileStorage {
	return &FileStorage{basePath: basePath}
}

func (s *FileStorage) Path() string {
	return s.basePath
}

func (s *FileStorage) Init() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parent := filepath.Dir(s.basePath); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return false, oops.With("base_path", s.basePath, "context", "failed to create storage root").Wrap(errors.IO(err))
		}
	}

	if err := os.Mkdir(s.basePath, 0o755); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, oops.With("base_path", s.basePath, "context", "failed to create channels directory").Wrap(errors.IO(err))
	}
	return true, nil
}

func (s *FileStorage) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, oops.With("directory", s.basePath, "context", "failed to read channels directory").Wrap(errors.IO(err))
	}

	ids := lo.FilterMap(entries, func(entry os.DirEntry, _ int) (string, bool) {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			return "", false
		}
		return strings.TrimSuffix(name, recordExt), true
	})
	slices.Sort(ids)

	return ids, nil
}

func (s *FileStorage) Read(id string) ([]byte, error) {
	path, err := s.recordPath(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oops.With("channel_id", id).Wrap(errors.ErrChannelNotFound)
		}
		return nil, oops.With("channel_id", id, "context", "failed to read channel").Wrap(errors.IO(err))
	}
	return data, nil
}

// Write replaces the record through a temp file and rename so a crash never
// leaves a half-written record behind.
func (s *FileStorage) Write(id string, data []byte) error {
	path, err := s.recordPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.basePath, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return oops.With("channel_id", id, "context", "failed to create temp file").Wrap(errors.IO(err))
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return oops.With("channel_id", id, "context", "failed to write channel").Wrap(errors.IO(writeErr))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return oops.With("channel_id", id, "context", "failed to replace channel file").Wrap(errors.IO(err))
	}
	return nil
}

func (s *FileStorage) Delete(id string) error {
	path, err := s.recordPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return oops.With("channel_id", id, "context", "failed to delete channel").Wrap(errors.IO(err))
	}
	return nil
}

func (s *FileStorage) recordPath(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", oops.With("channel_id", id).Wrap(errors.Validation(fmt.Errorf("invalid channel id")))
	}
	return filepath.Join(s.basePath, id+recordExt), nil
}
