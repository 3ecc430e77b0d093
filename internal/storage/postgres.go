package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/xaenox/relay-bot/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresStorage struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, now: func() time.Time { return time.Now().UTC() }}

	if err := storage.migrate(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("error reading migrations: %w", err)
	}
	driver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("error creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetOrCreateProfile(ctx context.Context, userID int64, username, firstName string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	query := `
		INSERT INTO users (user_id, username, first_name, registered_at, last_reset_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username, first_name = EXCLUDED.first_name
		RETURNING user_id, username, first_name, registered_at, last_reset_at,
		          total_requests, violations_count, is_muted`

	p := &models.Profile{}
	err := s.db.QueryRowContext(ctx, query, userID, username, firstName, now).Scan(
		&p.UserID, &p.Username, &p.FirstName, &p.RegisteredAt, &p.LastResetAt,
		&p.TotalRequests, &p.ViolationsCount, &p.IsMuted,
	)
	if err != nil {
		return nil, fmt.Errorf("error upserting user: %w", err)
	}
	return p, nil
}

func (s *PostgresStorage) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT user_id, username, first_name, registered_at, last_reset_at,
		       total_requests, violations_count, is_muted
		FROM users
		WHERE user_id = $1`

	p := &models.Profile{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Username, &p.FirstName, &p.RegisteredAt, &p.LastResetAt,
		&p.TotalRequests, &p.ViolationsCount, &p.IsMuted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return p, nil
}

func (s *PostgresStorage) IncrementRequests(ctx context.Context, userID int64, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET total_requests = total_requests + $1 WHERE user_id = $2`, delta, userID)
	if err != nil {
		return fmt.Errorf("error incrementing requests: %w", err)
	}
	return expectRow(result)
}

func (s *PostgresStorage) IncrementViolations(ctx context.Context, userID int64, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET violations_count = violations_count + $1
		WHERE user_id = $2
		RETURNING violations_count`, delta, userID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("error incrementing violations: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) SetMuted(ctx context.Context, userID int64, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_muted = $1 WHERE user_id = $2`, muted, userID)
	if err != nil {
		return fmt.Errorf("error updating mute flag: %w", err)
	}
	return expectRow(result)
}

func (s *PostgresStorage) AppendMessage(ctx context.Context, userID int64, role models.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)`, userID, string(role), content, s.now())
	if err != nil {
		return fmt.Errorf("error creating message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetRecentMessages(ctx context.Context, userID int64, limit int) ([]models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return []models.MessageRecord{}, nil
	}
	query := `
		SELECT id, user_id, role, content, created_at
		FROM messages
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var out []models.MessageRecord
	for rows.Next() {
		var m models.MessageRecord
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		m.Role = models.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	reverse(out)
	return out, nil
}

func (s *PostgresStorage) ClearDialog(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("error deleting messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET last_reset_at = GREATEST($1, last_reset_at + INTERVAL '1 microsecond')
		WHERE user_id = $2`, s.now(), userID)
	if err != nil {
		return fmt.Errorf("error updating last_reset_at: %w", err)
	}
	if err := expectRow(result); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
