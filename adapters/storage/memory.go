package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"car-edition/internal/errors"
)

// MemoryStore is an in-memory booking store
type MemoryStore struct {
	bookings map[string]*Booking
	mu       sync.RWMutex
	now      func() time.Time
}

// NewMemoryStore creates a memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]*Booking),
		now:      time.Now,
	}
}

func (s *MemoryStore) Save(ctx context.Context, booking *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := prepare(booking, uuid.NewString, s.now().UTC()); err != nil {
		return err
	}
	if existing, ok := s.bookings[booking.ID]; ok {
		keepLifecycle(booking, existing)
	}
	s.bookings[booking.ID] = booking.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, errors.NotFound("booking", id)
	}
	return b.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, filter *ListFilter) (*ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		all = append(all, b)
	}
	return paginate(all, filter), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, errors.NotFound("booking", id)
	}
	if err := checkTransition(id, b.Status, status); err != nil {
		return nil, err
	}
	b.Status = status
	b.UpdatedAt = s.now().UTC()
	return b.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[id]; !ok {
		return errors.NotFound("booking", id)
	}
	delete(s.bookings, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
