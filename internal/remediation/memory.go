package remediation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
)

// MemoryStore is a process-local Store. Sessions older than ttl are treated
// as missing; a zero ttl keeps them until consumed.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.RemediationSession
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
	cron     *cron.Cron
}

func NewMemoryStore(ttl time.Duration, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.RemediationSession),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *MemoryStore) Create(ctx context.Context, userID int64, original, proposed string, reason models.RemediationReason) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	for _, exists := s.sessions[token]; exists; _, exists = s.sessions[token] {
		token = uuid.NewString()
	}
	s.sessions[token] = models.RemediationSession{
		Token:     token,
		UserID:    userID,
		Original:  original,
		Proposed:  proposed,
		Reason:    reason,
		CreatedAt: s.now(),
	}
	return token, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, token string, userID int64) (*models.RemediationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok || s.expired(sess, s.now()) {
		return nil, ErrNotFound
	}
	if sess.UserID != userID {
		return nil, ErrNotOwner
	}
	return &sess, nil
}

func (s *MemoryStore) Consume(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return false, nil
	}
	delete(s.sessions, token)
	return !s.expired(sess, s.now()), nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) expired(sess models.RemediationSession, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.CreatedAt) > s.ttl
}

// StartSweeper runs Sweep on the given cron schedule until Stop is called.
func (s *MemoryStore) StartSweeper(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if n := s.Sweep(s.now()); n > 0 {
			s.logger.Info("Expired remediation sessions removed", zap.Int("count", n))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
