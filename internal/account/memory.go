package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It gives the same compare-and-swap
// guarantees as Repository and is used by tests and local tooling.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*Account
	byEmail map[string]uuid.UUID
	nowF    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory account store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uuid.UUID]*Account),
		byEmail: make(map[string]uuid.UUID),
		nowF:    time.Now,
	}
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return acc.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, acc *Account) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := NormalizeEmail(acc.Email)
	if _, exists := s.byEmail[email]; exists {
		return nil, ErrDuplicateEmail
	}

	stored := acc.Clone()
	stored.Email = email
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := s.nowF()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Version = 0

	s.byID[stored.ID] = stored
	s.byEmail[email] = stored.ID

	return stored.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, acc *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[acc.ID]
	if !ok || current.Version != acc.Version {
		return ErrStaleAccount
	}

	stored := acc.Clone()
	// Identity and classification are set once at creation
	stored.Email = current.Email
	stored.RoleGroup = current.RoleGroup
	stored.CreatedAt = current.CreatedAt
	stored.Version = current.Version + 1
	stored.UpdatedAt = s.nowF()

	s.byID[acc.ID] = stored

	acc.Version = stored.Version
	acc.UpdatedAt = stored.UpdatedAt
	return nil
}
