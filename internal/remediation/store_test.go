package remediation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Minute)
}

func stores(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore(0, zap.NewNop()) },
		"redis":  func(t *testing.T) Store { return newTestRedisStore(t) },
	}
}

func TestStore_Lifecycle(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			token, err := s.Create(ctx, 1, "оригинал", "вариант", models.ReasonProfanity)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if token == "" {
				t.Fatal("empty token")
			}

			sess, err := s.Resolve(ctx, token, 1)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if sess.Token != token || sess.UserID != 1 || sess.Original != "оригинал" ||
				sess.Proposed != "вариант" || sess.Reason != models.ReasonProfanity {
				t.Fatalf("unexpected session: %+v", sess)
			}

			removed, err := s.Consume(ctx, token)
			if err != nil || !removed {
				t.Fatalf("consume = %v, %v", removed, err)
			}
			removed, err = s.Consume(ctx, token)
			if err != nil || removed {
				t.Fatalf("second consume = %v, %v; want false, nil", removed, err)
			}
			if _, err := s.Resolve(ctx, token, 1); !errors.Is(err, ErrNotFound) {
				t.Fatalf("resolve after consume: %v", err)
			}
		})
	}
}

func TestStore_NotOwner(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			token, _ := s.Create(ctx, 1, "a", "b", models.ReasonModeration)
			t.Cleanup(func() { s.Consume(ctx, token) })

			if _, err := s.Resolve(ctx, token, 2); !errors.Is(err, ErrNotOwner) {
				t.Fatalf("resolve by stranger: %v, want ErrNotOwner", err)
			}
			if _, err := s.Resolve(ctx, token, 1); err != nil {
				t.Fatalf("owner lost the session: %v", err)
			}
		})
	}
}

func TestStore_UnknownToken(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			if _, err := s.Resolve(context.Background(), "no-such-token", 1); !errors.Is(err, ErrNotFound) {
				t.Fatalf("got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ConcurrentConsumeSingleWinner(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			token, _ := s.Create(ctx, 1, "a", "b", models.ReasonProfanity)

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if ok, _ := s.Consume(ctx, token); ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			if wins.Load() != 1 {
				t.Fatalf("consume won %d times", wins.Load())
			}
		})
	}
}

func TestMemoryStore_UniqueTokens(t *testing.T) {
	s := NewMemoryStore(0, zap.NewNop())
	ctx := context.Background()

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			token, err := s.Create(ctx, uid, "x", "y", models.ReasonProfanity)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			mu.Lock()
			seen[token] = true
			mu.Unlock()
		}(int64(i))
	}
	wg.Wait()
	if len(seen) != 100 || s.Len() != 100 {
		t.Fatalf("tokens=%d stored=%d", len(seen), s.Len())
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore(time.Minute, zap.NewNop())
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	old, _ := s.Create(ctx, 1, "a", "b", models.ReasonProfanity)
	now = now.Add(30 * time.Second)
	fresh, _ := s.Create(ctx, 1, "c", "d", models.ReasonProfanity)
	now = now.Add(45 * time.Second)

	if _, err := s.Resolve(ctx, old, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session resolved: %v", err)
	}
	if _, err := s.Resolve(ctx, fresh, 1); err != nil {
		t.Fatalf("fresh session: %v", err)
	}

	if n := s.Sweep(now); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	now = now.Add(time.Hour)
	if ok, _ := s.Consume(ctx, fresh); ok {
		t.Fatal("consuming an expired session must not report success")
	}
}

func TestMemoryStore_Sweeper(t *testing.T) {
	s := NewMemoryStore(time.Minute, zap.NewNop())
	if err := s.StartSweeper("not a schedule"); err == nil {
		t.Fatal("expected schedule error")
	}
	if err := s.StartSweeper("@every 1m"); err != nil {
		t.Fatalf("StartSweeper: %v", err)
	}
	s.Stop()
	s.Stop()
}
