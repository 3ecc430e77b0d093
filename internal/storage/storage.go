package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
)

// ErrProfileNotFound is returned by updates addressed to an unknown user.
var ErrProfileNotFound = errors.New("profile not found")

// Storage is the persistence layer of the bot. Implementations serialize
// every operation through a single process-wide lock.
type Storage interface {
	GetOrCreateProfile(ctx context.Context, userID int64, username, firstName string) (*models.Profile, error)
	GetProfile(ctx context.Context, userID int64) (*models.Profile, error)
	IncrementRequests(ctx context.Context, userID int64, delta int64) error
	IncrementViolations(ctx context.Context, userID int64, delta int64) (int64, error)
	SetMuted(ctx context.Context, userID int64, muted bool) error

	AppendMessage(ctx context.Context, userID int64, role models.Role, content string) error
	// GetRecentMessages returns at most limit records, oldest first.
	GetRecentMessages(ctx context.Context, userID int64, limit int) ([]models.MessageRecord, error)
	// ClearDialog deletes the user's records and moves last_reset_at forward.
	ClearDialog(ctx context.Context, userID int64) error

	Ping(ctx context.Context) error
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New opens the backend selected by cfg.Driver.
func New(cfg DatabaseConfig, logger *zap.Logger) (Storage, error) {
	switch cfg.Driver {
	case DriverMemory:
		logger.Info("Using in-memory storage")
		return NewMemoryStorage(), nil
	case DriverSQLite, "":
		logger.Info("Using SQLite storage", zap.String("path", cfg.Path))
		return NewSQLiteStorage(cfg.Path)
	case DriverPostgres:
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Host), zap.String("dbname", cfg.DBName))
		return NewPostgresStorage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

// nextResetTime returns now, bumped past prev so consecutive resets are
// strictly ordered even on coarse clocks.
func nextResetTime(prev, now time.Time) time.Time {
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
