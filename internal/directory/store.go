// Package directory resolves users for the scheduling engine and the HTTP layer.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"medibook-server/internal/models"
)

// Store reads users from the database.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new directory Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindUser returns the user with the given id. A missing user yields an error
// wrapping models.ErrNotFound.
func (s *Store) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return &user, nil
}

// ListDoctors returns all doctors, optionally narrowed to a specialization.
func (s *Store) ListDoctors(ctx context.Context, specialization string) ([]models.User, error) {
	q := s.db.WithContext(ctx).Where("role = ?", models.RoleDoctor)
	if name := strings.TrimSpace(specialization); name != "" {
		q = q.Where("LOWER(specialization) = ?", strings.ToLower(name))
	}

	doctors := []models.User{}
	if err := q.Order("last_name asc, first_name asc").Find(&doctors).Error; err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

// ListByRole returns every user holding role.
func (s *Store) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	users := []models.User{}
	err := s.db.WithContext(ctx).
		Where("role = ?", role).
		Order("last_name asc, first_name asc").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list %s users: %w", role, err)
	}
	return users, nil
}
