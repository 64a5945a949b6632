package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"sentinelmesh/internal/storage"
)

var ErrUserNotFound = errors.New("user not found")

type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, username, passwordHash string, role Role) (*User, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	const q = `SELECT id, username, password_hash, role, created_at FROM users WHERE username = $1`
	u := &User{}
	if err := s.db.QueryRowContext(ctx, q, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, storage.Wrap("get", "users", err)
	}
	return u, nil
}

func (s *PostgresStore) Create(ctx context.Context, username, passwordHash string, role Role) (*User, error) {
	const q = `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, username, password_hash, role, created_at
	`
	u := &User{}
	if err := s.db.QueryRowContext(ctx, q, username, passwordHash, role, time.Now().UTC()).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		return nil, storage.Wrap("create", "users", err)
	}
	return u, nil
}

type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]User
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (s *MemoryStore) GetByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) Create(_ context.Context, username, passwordHash string, role Role) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return nil, fmt.Errorf("user %q already exists", username)
	}
	s.nextID++
	u := User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[username] = u
	return &u, nil
}

type usersFile struct {
	Users []struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Role     Role   `yaml:"role"`
	} `yaml:"users"`
}

// SeedFromFile creates the operators listed in a YAML file. Existing usernames are left untouched.
func SeedFromFile(ctx context.Context, store UserStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read users file: %w", err)
	}
	var uf usersFile
	if err := yaml.Unmarshal(data, &uf); err != nil {
		return 0, fmt.Errorf("parse users file: %w", err)
	}
	created := 0
	for _, u := range uf.Users {
		if u.Username == "" || u.Password == "" {
			continue
		}
		role := u.Role
		if role == "" {
			role = RoleReadOnly
		}
		if !role.Valid() {
			return created, fmt.Errorf("user %q: unknown role %q", u.Username, u.Role)
		}
		if _, err := store.GetByUsername(ctx, u.Username); err == nil {
			continue
		} else if !errors.Is(err, ErrUserNotFound) {
			return created, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return created, err
		}
		if _, err := store.Create(ctx, u.Username, string(hash), role); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
