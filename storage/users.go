// Copyright 2024-2025 The chatmq Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/alwitt/chatmq/common"
	"github.com/apex/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserStore persistence operations on chat identities
type UserStore interface {
	// CreateUser record a new identity with a pre-hashed password
	CreateUser(ctxt context.Context, name, passwordHash string) (User, error)
	// GetUser fetch one identity by ID
	GetUser(ctxt context.Context, userID string) (User, error)
	// GetUserByName fetch one identity by unique display name
	GetUserByName(ctxt context.Context, name string) (User, error)
	// UpdateUserName change an identity's display name
	UpdateUserName(ctxt context.Context, userID, newName string) (User, error)
	// SearchUsers find identities whose name contains the query string
	SearchUsers(ctxt context.Context, query string, limit int) ([]User, error)
	// SetUserPresence update the online flag and last-seen timestamp
	SetUserPresence(ctxt context.Context, userID string, online bool) error
}

// userStoreImpl implements UserStore
type userStoreImpl struct {
	common.Component
	db *gorm.DB
}

// GetUserStore define a new UserStore
func GetUserStore(db *gorm.DB) (UserStore, error) {
	logTags := log.Fields{
		"module":    "storage",
		"component": "user-store",
	}
	return &userStoreImpl{Component: common.Component{LogTags: logTags}, db: db}, nil
}

// CreateUser record a new identity with a pre-hashed password
func (s *userStoreImpl) CreateUser(
	ctxt context.Context, name, passwordHash string,
) (User, error) {
	user := User{
		ID:           uuid.New().String(),
		Name:         name,
		PasswordHash: passwordHash,
		LastSeenAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctxt).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, ErrDuplicateName
		}
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to create user %s", name)
		return User{}, err
	}
	return user, nil
}

// GetUser fetch one identity by ID
func (s *userStoreImpl) GetUser(ctxt context.Context, userID string) (User, error) {
	var user User
	if err := s.db.WithContext(ctxt).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// GetUserByName fetch one identity by unique display name
func (s *userStoreImpl) GetUserByName(ctxt context.Context, name string) (User, error) {
	var user User
	if err := s.db.WithContext(ctxt).First(&user, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// UpdateUserName change an identity's display name
func (s *userStoreImpl) UpdateUserName(
	ctxt context.Context, userID, newName string,
) (User, error) {
	user, err := s.GetUser(ctxt, userID)
	if err != nil {
		return User{}, err
	}
	user.Name = newName
	if err := s.db.WithContext(ctxt).Save(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, ErrDuplicateName
		}
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to rename user %s", userID)
		return User{}, err
	}
	return user, nil
}

// SearchUsers find identities whose name contains the query string
func (s *userStoreImpl) SearchUsers(
	ctxt context.Context, query string, limit int,
) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctxt).
		Where("name LIKE ?", "%"+query+"%").
		Order("name").
		Limit(limit).
		Find(&users).Error; err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("User search '%s' failed", query)
		return nil, err
	}
	return users, nil
}

// SetUserPresence update the online flag and last-seen timestamp
func (s *userStoreImpl) SetUserPresence(
	ctxt context.Context, userID string, online bool,
) error {
	result := s.db.WithContext(ctxt).Model(&User{}).Where("id = ?", userID).Updates(
		map[string]interface{}{"online": online, "last_seen_at": time.Now().UTC()},
	)
	if result.Error != nil {
		log.WithError(result.Error).WithFields(s.LogTags).Errorf(
			"Unable to update presence of %s", userID,
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
