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
	"errors"
	"time"

	"github.com/apex/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound the referenced record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateName a record with the same unique name already exists
	ErrDuplicateName = errors.New("name already in use")
	// ErrAlreadyMember the user is already a member of the room
	ErrAlreadyMember = errors.New("already a room member")
	// ErrNotMember the user is not a member of the room
	ErrNotMember = errors.New("not a room member")
)

// User one chat identity
type User struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Online       bool
	LastSeenAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary reduce a user to the fields carried on outbound events
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Online: u.Online}
}

// UserSummary the user fields embedded in messages and events
type UserSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// Room one chat room and its member set
type Room struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Private   bool
	OwnerID   string `gorm:"index;not null"`
	Members   []User `gorm:"many2many:room_members"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message one persisted chat message
type Message struct {
	ID        string `gorm:"primaryKey"`
	RoomID    string `gorm:"index;not null"`
	SenderID  string `gorm:"index;not null"`
	Content   string `gorm:"not null"`
	Type      string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OpenDatabase open the chat record store and migrate its schema
func OpenDatabase(dsn string) (*gorm.DB, error) {
	logTags := log.Fields{
		"module":    "storage",
		"component": "database",
		"instance":  dsn,
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Surface unique constraint violations as gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to open record store")
		return nil, err
	}
	if err := db.AutoMigrate(&User{}, &Room{}, &Message{}); err != nil {
		log.WithError(err).WithFields(logTags).Error("Schema migration failed")
		return nil, err
	}
	log.WithFields(logTags).Info("Opened record store")
	return db, nil
}
