package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"car-edition/internal/errors"
)

// FileStore keeps one JSON document per booking under basePath
type FileStore struct {
	basePath string
	mu       sync.RWMutex
	now      func() time.Time
}

// NewFileStore creates a file store
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Config("failed to create storage directory", err).WithContext("path", basePath)
	}
	return &FileStore{basePath: basePath, now: time.Now}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return "", errors.Validation(fmt.Sprintf("invalid booking id %q", id))
	}
	return filepath.Join(s.basePath, id+".json"), nil
}

func (s *FileStore) Save(ctx context.Context, booking *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := prepare(booking, uuid.NewString, s.now().UTC()); err != nil {
		return err
	}
	existing, err := s.read(booking.ID)
	switch {
	case err == nil:
		keepLifecycle(booking, existing)
	case !errors.IsType(err, errors.TypeNotFound):
		return err
	}
	return s.write(booking)
}

func (s *FileStore) write(booking *Booking) error {
	filePath, err := s.path(booking.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(booking, "", "  ")
	if err != nil {
		return errors.Internal("failed to marshal booking", err)
	}

	// write then rename so readers never see a partial file
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Internal("failed to write booking", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return errors.Internal("failed to write booking", err)
	}
	return nil
}

func (s *FileStore) read(id string) (*Booking, error) {
	filePath, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("booking", id)
		}
		return nil, errors.Internal("failed to read booking", err)
	}

	var b Booking
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.Internal("failed to unmarshal booking", err).WithContext("id", id)
	}
	return &b, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(id)
}

func (s *FileStore) List(ctx context.Context, filter *ListFilter) (*ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, errors.Internal("failed to read storage", err)
	}

	var all []*Booking
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		b, err := s.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// skip unreadable documents
			continue
		}
		all = append(all, b)
	}
	return paginate(all, filter), nil
}

func (s *FileStore) UpdateStatus(ctx context.Context, id string, status Status) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(id, b.Status, status); err != nil {
		return nil, err
	}
	b.Status = status
	b.UpdatedAt = s.now().UTC()
	if err := s.write(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("booking", id)
		}
		return errors.Internal("failed to delete booking", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
