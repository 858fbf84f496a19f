package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vesaa/raspterm/internal/models"
	"gorm.io/gorm"
)

const defaultScriptIcon = "terminal"

// ListScripts returns all custom scripts ordered by name.
func (s *Store) ListScripts(ctx context.Context) ([]models.Script, error) {
	var out []models.Script
	if err := s.db.WithContext(ctx).Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	return out, nil
}

// GetScript returns a script by id or ErrNotFound.
func (s *Store) GetScript(ctx context.Context, id uint) (*models.Script, error) {
	var sc models.Script
	err := s.db.WithContext(ctx).First(&sc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get script %d: %w", id, err)
	}
	return &sc, nil
}

// CreateScript inserts sc and fills in its ID.
func (s *Store) CreateScript(ctx context.Context, sc *models.Script) error {
	if sc.Icon == "" {
		sc.Icon = defaultScriptIcon
	}
	if err := s.db.WithContext(ctx).Create(sc).Error; err != nil {
		return fmt.Errorf("create script: %w", err)
	}
	return nil
}

// UpdateScript replaces the mutable fields of script id.
func (s *Store) UpdateScript(ctx context.Context, id uint, sc *models.Script) error {
	icon := sc.Icon
	if icon == "" {
		icon = defaultScriptIcon
	}
	res := s.db.WithContext(ctx).Model(&models.Script{}).Where("id = ?", id).Updates(map[string]any{
		"name":        sc.Name,
		"description": sc.Description,
		"command":     sc.Command,
		"icon":        icon,
	})
	if res.Error != nil {
		return fmt.Errorf("update script %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteScript removes script id. Deleting a missing id is not an error.
func (s *Store) DeleteScript(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&models.Script{}, id).Error; err != nil {
		return fmt.Errorf("delete script %d: %w", id, err)
	}
	return nil
}
