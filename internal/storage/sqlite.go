package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xaenox/relay-bot/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage on a local SQLite file.
type SQLiteStorage struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteStorage opens (and creates if needed) the database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		path = "bot.db"
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// All access is serialized by mu; one connection also keeps :memory: coherent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStorage{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		registered_at INTEGER NOT NULL,
		last_reset_at INTEGER NOT NULL,
		total_requests INTEGER NOT NULL DEFAULT 0,
		violations_count INTEGER NOT NULL DEFAULT 0,
		is_muted INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(user_id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetOrCreateProfile(ctx context.Context, userID int64, username, firstName string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixNano()
	query := `
	INSERT INTO users (user_id, username, first_name, registered_at, last_reset_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		first_name = excluded.first_name`
	if _, err := s.db.ExecContext(ctx, query, userID, username, firstName, now, now); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.getProfileLocked(ctx, userID)
}

func (s *SQLiteStorage) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getProfileLocked(ctx, userID)
}

func (s *SQLiteStorage) getProfileLocked(ctx context.Context, userID int64) (*models.Profile, error) {
	query := `
		SELECT user_id, username, first_name, registered_at, last_reset_at,
		       total_requests, violations_count, is_muted
		FROM users WHERE user_id = ?`

	var p models.Profile
	var registeredAt, lastResetAt int64
	var muted int
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Username, &p.FirstName, &registeredAt, &lastResetAt,
		&p.TotalRequests, &p.ViolationsCount, &muted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	p.RegisteredAt = time.Unix(0, registeredAt).UTC()
	p.LastResetAt = time.Unix(0, lastResetAt).UTC()
	p.IsMuted = muted != 0
	return &p, nil
}

func (s *SQLiteStorage) IncrementRequests(ctx context.Context, userID int64, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET total_requests = total_requests + ? WHERE user_id = ?`, delta, userID)
	if err != nil {
		return fmt.Errorf("increment requests: %w", err)
	}
	return expectRow(result)
}

func (s *SQLiteStorage) IncrementViolations(ctx context.Context, userID int64, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET violations_count = violations_count + ? WHERE user_id = ? RETURNING violations_count`,
		delta, userID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment violations: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) SetMuted(ctx context.Context, userID int64, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flag := 0
	if muted {
		flag = 1
	}
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_muted = ? WHERE user_id = ?`, flag, userID)
	if err != nil {
		return fmt.Errorf("set muted: %w", err)
	}
	return expectRow(result)
}

func (s *SQLiteStorage) AppendMessage(ctx context.Context, userID int64, role models.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, string(role), content, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetRecentMessages(ctx context.Context, userID int64, limit int) ([]models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return []models.MessageRecord{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, created_at
		FROM messages
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []models.MessageRecord
	for rows.Next() {
		var m models.MessageRecord
		var role string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.Role(role)
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	reverse(out)
	return out, nil
}

func (s *SQLiteStorage) ClearDialog(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE users SET last_reset_at = MAX(?, last_reset_at + 1000) WHERE user_id = ?`,
		s.now().UnixNano(), userID)
	if err != nil {
		return fmt.Errorf("update last_reset_at: %w", err)
	}
	if err := expectRow(result); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func expectRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func reverse(records []models.MessageRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
