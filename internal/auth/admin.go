package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"kospresensi/internal/apperr"
)

// AdminStore persists admin credentials.
type AdminStore struct {
	db *sql.DB
}

// NewAdminStore creates the store.
func NewAdminStore(db *sql.DB) *AdminStore {
	return &AdminStore{db: db}
}

// EnsureAdmin makes sure exactly one credential record exists for the
// given username. It is idempotent and safe to run on every startup.
func (s *AdminStore) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("admin credentials not configured")
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM admins WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if exists {
		logrus.WithField("username", username).Debug("admin account already present")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO admins (id, username, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING
	`, uuid.NewString(), username, string(hash))
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	logrus.WithField("username", username).Info("admin account created")
	return nil
}

// Authenticate verifies credentials and returns the admin id.
func (s *AdminStore) Authenticate(ctx context.Context, username, password string) (string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM admins WHERE username = $1`, username,
	).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.New(apperr.ErrUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return "", fmt.Errorf("load admin: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", apperr.New(apperr.ErrUnauthorized, "Invalid credentials")
	}
	return id, nil
}
