package storage

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/relay-bot/internal/models"
)

type MemoryStorage struct {
	mu       sync.Mutex
	users    map[int64]*models.Profile
	messages map[int64][]models.MessageRecord
	seq      int64
	now      func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[int64]*models.Profile),
		messages: make(map[int64][]models.MessageRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Profile methods
func (s *MemoryStorage) GetOrCreateProfile(ctx context.Context, userID int64, username, firstName string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, exists := s.users[userID]; exists {
		user.Username = username
		user.FirstName = firstName
		p := *user
		return &p, nil
	}

	now := s.now()
	user := &models.Profile{
		UserID:       userID,
		Username:     username,
		FirstName:    firstName,
		RegisteredAt: now,
		LastResetAt:  now,
	}
	s.users[userID] = user
	p := *user
	return &p, nil
}

func (s *MemoryStorage) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, ErrProfileNotFound
	}
	p := *user
	return &p, nil
}

func (s *MemoryStorage) IncrementRequests(ctx context.Context, userID int64, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return ErrProfileNotFound
	}
	user.TotalRequests += delta
	return nil
}

func (s *MemoryStorage) IncrementViolations(ctx context.Context, userID int64, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return 0, ErrProfileNotFound
	}
	user.ViolationsCount += delta
	return user.ViolationsCount, nil
}

func (s *MemoryStorage) SetMuted(ctx context.Context, userID int64, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return ErrProfileNotFound
	}
	user.IsMuted = muted
	return nil
}

// Dialog methods
func (s *MemoryStorage) AppendMessage(ctx context.Context, userID int64, role models.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.messages[userID] = append(s.messages[userID], models.MessageRecord{
		ID:        s.seq,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	})
	return nil
}

func (s *MemoryStorage) GetRecentMessages(ctx context.Context, userID int64, limit int) ([]models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return []models.MessageRecord{}, nil
	}
	all := s.messages[userID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]models.MessageRecord, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStorage) ClearDialog(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return ErrProfileNotFound
	}
	delete(s.messages, userID)
	user.LastResetAt = nextResetTime(user.LastResetAt, s.now())
	return nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
