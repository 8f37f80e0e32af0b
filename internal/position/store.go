/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package position persists the rotation cursor across process restarts.
// The contract is a plain key -> string store keyed by playlist identity.
package position

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/signbeam/signbeam_player/internal/models"
)

// Store is the key -> string persistence contract the director depends on.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// GormStore persists positions in the local database. This is the default
// backend for a standalone kiosk.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the position table and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.PlaybackPosition{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Get returns the stored value for key, reporting ok=false for a miss.
func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var row models.PlaybackPosition
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

// Set upserts the value for key.
func (s *GormStore) Set(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).Save(&models.PlaybackPosition{Key: key, Value: value}).Error
}

// Delete removes the stored value for key.
func (s *GormStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&models.PlaybackPosition{}, "key = ?", key).Error
}
