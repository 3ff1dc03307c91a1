package memory

import (
	"context"
	"sort"
	"sync"

	"Xcrol/internal/core/users"
)

// UserStore implements users.UserRepository over seeded data.
type UserStore struct {
	profiles    map[string]*users.Profile
	connections map[string][]users.Connection
	entries     map[string][]users.DiaryEntry
	mu          sync.RWMutex
}

// NewUserStore creates an empty user store
func NewUserStore() *UserStore {
	return &UserStore{
		profiles:    make(map[string]*users.Profile),
		connections: make(map[string][]users.Connection),
		entries:     make(map[string][]users.DiaryEntry),
	}
}

var _ users.UserRepository = (*UserStore)(nil)

// PutProfile inserts or replaces a profile.
func (s *UserStore) PutProfile(p users.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = &p
}

// AddConnection records an accepted friendship from userID's side.
func (s *UserStore) AddConnection(userID string, c users.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[userID] = append(s.connections[userID], c)
}

// AddDiaryEntry stores a non-private entry for userID.
func (s *UserStore) AddDiaryEntry(userID string, e users.DiaryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = append(s.entries[userID], e)
}

func (s *UserStore) GetProfile(ctx context.Context, userID string) (*users.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	out := *p
	return &out, nil
}

func (s *UserStore) ListConnections(ctx context.Context, userID string) ([]users.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]users.Connection(nil), s.connections[userID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func (s *UserStore) ListDiaryEntries(ctx context.Context, userID string, limit int) ([]users.DiaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]users.DiaryEntry(nil), s.entries[userID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
