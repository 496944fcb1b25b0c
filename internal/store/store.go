// Package store persists users, their platform accounts, and the
// training snippets used to personalize generated comments. Backed by
// SQLite; the engagement core only reads accounts and writes back
// last-active timestamps.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a uniqueness constraint would break.
	ErrDuplicate = errors.New("store: already exists")
	// ErrBadCredentials is returned on a failed password check.
	ErrBadCredentials = errors.New("store: invalid credentials")
)

// User is an API user who owns platform accounts.
type User struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
}

// Account is one platform account owned by a user. Username is unique
// within the owning user's account list.
type Account struct {
	ID         string
	UserID     string
	Username   string
	Password   string
	IsActive   bool
	LastActive *time.Time
}

// UserAccounts pairs a user with their active accounts for one pass.
type UserAccounts struct {
	User     User
	Accounts []Account
}

// TrainingItem is one personalization snippet.
type TrainingItem struct {
	ID              string
	UserID          string
	AccountUsername string
	DataType        string
	Content         string
	Source          string
	CreatedAt       time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open initializes the SQLite database at the given path, creating the
// parent directory and schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		username TEXT NOT NULL,
		password TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		last_active DATETIME,
		UNIQUE(user_id, username)
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
	CREATE TABLE IF NOT EXISTS training_data (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		account_username TEXT NOT NULL,
		data_type TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_training_account ON training_data(user_id, account_username);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// CreateUser registers a new user with a bcrypt-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, email, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, string(hash), u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Authenticate checks a username/password pair and returns the user.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &u.Email, &hash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return &u, nil
}

// GetUser looks a user up by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// AddAccount attaches a platform account to a user.
func (s *Store) AddAccount(ctx context.Context, userID, username, password string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := &Account{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		Password: password,
		IsActive: true,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, username, password, is_active) VALUES (?, ?, ?, ?, 1)`,
		a.ID, a.UserID, a.Username, a.Password)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

// ListAccounts returns all accounts of a user.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, username, password, is_active, last_active
		 FROM accounts WHERE user_id = ? ORDER BY username`, userID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// ToggleAccount flips an account's active flag and returns the new state.
func (s *Store) ToggleAccount(ctx context.Context, userID, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET is_active = 1 - is_active WHERE user_id = ? AND username = ?`,
		userID, username)
	if err != nil {
		return false, fmt.Errorf("toggle account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrNotFound
	}

	var active bool
	err = s.db.QueryRowContext(ctx,
		`SELECT is_active FROM accounts WHERE user_id = ? AND username = ?`,
		userID, username).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("read account state: %w", err)
	}
	return active, nil
}

// FindActiveAccounts returns every user that has at least one active
// account, each paired with their active accounts, in a stable order.
func (s *Store) FindActiveAccounts(ctx context.Context) ([]UserAccounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.email, u.created_at,
		        a.id, a.user_id, a.username, a.password, a.is_active, a.last_active
		 FROM users u JOIN accounts a ON a.user_id = u.id
		 WHERE a.is_active = 1
		 ORDER BY u.username, a.username`)
	if err != nil {
		return nil, fmt.Errorf("query active accounts: %w", err)
	}
	defer rows.Close()

	var result []UserAccounts
	index := map[string]int{}
	for rows.Next() {
		var u User
		var a Account
		var last sql.NullTime
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt,
			&a.ID, &a.UserID, &a.Username, &a.Password, &a.IsActive, &last); err != nil {
			return nil, fmt.Errorf("scan active account: %w", err)
		}
		if last.Valid {
			t := last.Time
			a.LastActive = &t
		}
		i, ok := index[u.ID]
		if !ok {
			result = append(result, UserAccounts{User: u})
			i = len(result) - 1
			index[u.ID] = i
		}
		result[i].Accounts = append(result[i].Accounts, a)
	}
	return result, rows.Err()
}

// RecordLastActive stamps an account after a completed engagement run.
func (s *Store) RecordLastActive(ctx context.Context, userID, username string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_active = ? WHERE user_id = ? AND username = ?`,
		ts.UTC(), userID, username)
	if err != nil {
		return fmt.Errorf("record last active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTrainingItem stores one personalization snippet.
func (s *Store) AddTrainingItem(ctx context.Context, item TrainingItem) (*TrainingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.ID = uuid.NewString()
	item.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_data (id, user_id, account_username, data_type, content, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, item.AccountUsername, item.DataType, item.Content, item.Source, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert training data: %w", err)
	}
	return &item, nil
}

// ListTrainingItems returns a user's snippets, most recent first.
func (s *Store) ListTrainingItems(ctx context.Context, userID string, limit int) ([]TrainingItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, account_username, data_type, content, source, created_at
		 FROM training_data WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query training data: %w", err)
	}
	defer rows.Close()

	var items []TrainingItem
	for rows.Next() {
		var it TrainingItem
		var source sql.NullString
		if err := rows.Scan(&it.ID, &it.UserID, &it.AccountUsername, &it.DataType, &it.Content, &source, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan training data: %w", err)
		}
		it.Source = source.String
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteTrainingItem removes one snippet owned by the user.
func (s *Store) DeleteTrainingItem(ctx context.Context, userID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM training_data WHERE id = ? AND user_id = ?`, itemID, userID)
	if err != nil {
		return fmt.Errorf("delete training data: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TrainingStats counts a user's snippets grouped by data type.
func (s *Store) TrainingStats(ctx context.Context, userID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT data_type, COUNT(*) FROM training_data WHERE user_id = ? GROUP BY data_type`, userID)
	if err != nil {
		return nil, fmt.Errorf("query training stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var dt string
		var n int
		if err := rows.Scan(&dt, &n); err != nil {
			return nil, fmt.Errorf("scan training stats: %w", err)
		}
		stats[dt] = n
	}
	return stats, rows.Err()
}

// RecentContext returns up to limit snippet contents for an account,
// most recent first. This is the personalization window the engagement
// loop feeds into prompts.
func (s *Store) RecentContext(ctx context.Context, userID, accountUsername string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM training_data
		 WHERE user_id = ? AND account_username = ?
		 ORDER BY created_at DESC, id LIMIT ?`,
		userID, accountUsername, limit)
	if err != nil {
		return nil, fmt.Errorf("query context: %w", err)
	}
	defer rows.Close()

	var snippets []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		snippets = append(snippets, c)
	}
	return snippets, rows.Err()
}

func scanAccounts(rows *sql.Rows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		var a Account
		var last sql.NullTime
		if err := rows.Scan(&a.ID, &a.UserID, &a.Username, &a.Password, &a.IsActive, &last); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if last.Valid {
			t := last.Time
			a.LastActive = &t
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the message.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
