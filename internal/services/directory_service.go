package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/clinidesk/clinidesk/internal/models"
	apperrors "github.com/clinidesk/clinidesk/pkg/errors"
)

// DirectoryService is the identity-lookup collaborator: it resolves clinic
// identities (patients, doctors, admins) for the notification core.
type DirectoryService struct {
	db *gorm.DB
}

// NewDirectoryService constructs a DirectoryService.
func NewDirectoryService(db *gorm.DB) (*DirectoryService, error) {
	if db == nil {
		return nil, errors.New("directory service: db is required")
	}
	return &DirectoryService{db: db}, nil
}

// Exists reports whether an active identity with the given role exists.
func (s *DirectoryService) Exists(ctx context.Context, role, id string) (bool, error) {
	role = strings.TrimSpace(role)
	id = strings.TrimSpace(id)
	if !models.ValidRole(role) || id == "" {
		return false, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND role = ? AND is_active = ?", id, role, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("directory service: lookup identity: %w", err)
	}
	return count > 0, nil
}

// IDsByRole returns the ids of every active identity holding the role.
func (s *DirectoryService) IDsByRole(ctx context.Context, role string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ? AND is_active = ?", strings.TrimSpace(role), true).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("directory service: list role members: %w", err)
	}
	return ids, nil
}

// Lookup loads a single identity by id.
func (s *DirectoryService) Lookup(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("directory service: load identity: %w", err)
	}
	return &user, nil
}

// FindByEmail loads an identity by email for credential checks.
func (s *DirectoryService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("directory service: load identity by email: %w", err)
	}
	return &user, nil
}
