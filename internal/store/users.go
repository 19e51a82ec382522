package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Roles recognized in the users table.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// GetUserRole returns the stored role for userID or ErrNotFound.
func (s *Store) GetUserRole(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load role for %s: %w", userID, err)
	}
	return role, nil
}

// SetUserRole creates or updates a user's role.
func (s *Store) SetUserRole(ctx context.Context, userID, role string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if role != RoleMember && role != RoleAdmin {
		return fmt.Errorf("invalid role %q (valid: %s, %s)", role, RoleMember, RoleAdmin)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, role, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		userID, role, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set role for %s: %w", userID, err)
	}
	return nil
}
