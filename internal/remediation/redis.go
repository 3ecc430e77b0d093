package remediation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xaenox/relay-bot/internal/models"
)

// SessionPrefix is the Redis key prefix for pending sessions.
// Each session is a hash at remediation:<token> with a TTL.
const SessionPrefix = "remediation:"

type redisSession struct {
	UserID    int64  `redis:"user_id"`
	Original  string `redis:"original"`
	Proposed  string `redis:"proposed"`
	Reason    string `redis:"reason"`
	CreatedAt int64  `redis:"created_at"`
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Create(ctx context.Context, userID int64, original, proposed string, reason models.RemediationReason) (string, error) {
	token := uuid.NewString()
	key := SessionPrefix + token

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, redisSession{
		UserID:    userID,
		Original:  original,
		Proposed:  proposed,
		Reason:    string(reason),
		CreatedAt: time.Now().UnixNano(),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store remediation session: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Resolve(ctx context.Context, token string, userID int64) (*models.RemediationSession, error) {
	res := s.client.HGetAll(ctx, SessionPrefix+token)
	fields, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("load remediation session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	var rs redisSession
	if err := res.Scan(&rs); err != nil {
		return nil, fmt.Errorf("decode remediation session: %w", err)
	}
	if rs.UserID != userID {
		return nil, ErrNotOwner
	}
	return &models.RemediationSession{
		Token:     token,
		UserID:    rs.UserID,
		Original:  rs.Original,
		Proposed:  rs.Proposed,
		Reason:    models.RemediationReason(rs.Reason),
		CreatedAt: time.Unix(0, rs.CreatedAt),
	}, nil
}

func (s *RedisStore) Consume(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Del(ctx, SessionPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("delete remediation session: %w", err)
	}
	return n == 1, nil
}
