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

	"github.com/alwitt/chatmq/common"
	"github.com/apex/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageStore persistence operations on chat messages
type MessageStore interface {
	// CreateMessage record a new message; the store assigns ID and timestamps
	CreateMessage(
		ctxt context.Context, roomID, senderID, content, msgType string,
	) (Message, error)
	// GetMessage fetch one message by ID
	GetMessage(ctxt context.Context, messageID string) (Message, error)
	// ListRoomMessages fetch a page of a room's messages, newest first
	ListRoomMessages(
		ctxt context.Context, roomID string, limit, offset int,
	) ([]Message, error)
	// UpdateMessage replace a message's content
	UpdateMessage(ctxt context.Context, messageID, newContent string) (Message, error)
	// DeleteMessage remove a message
	DeleteMessage(ctxt context.Context, messageID string) error
}

// messageStoreImpl implements MessageStore
type messageStoreImpl struct {
	common.Component
	db *gorm.DB
}

// GetMessageStore define a new MessageStore
func GetMessageStore(db *gorm.DB) (MessageStore, error) {
	logTags := log.Fields{
		"module":    "storage",
		"component": "message-store",
	}
	return &messageStoreImpl{Component: common.Component{LogTags: logTags}, db: db}, nil
}

// CreateMessage record a new message; the store assigns ID and timestamps
func (s *messageStoreImpl) CreateMessage(
	ctxt context.Context, roomID, senderID, content, msgType string,
) (Message, error) {
	message := Message{
		ID:       uuid.New().String(),
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
		Type:     msgType,
	}
	if err := s.db.WithContext(ctxt).Create(&message).Error; err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to persist message in room %s", roomID,
		)
		return Message{}, err
	}
	return message, nil
}

// GetMessage fetch one message by ID
func (s *messageStoreImpl) GetMessage(
	ctxt context.Context, messageID string,
) (Message, error) {
	var message Message
	if err := s.db.WithContext(ctxt).First(&message, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	return message, nil
}

// ListRoomMessages fetch a page of a room's messages, newest first
func (s *messageStoreImpl) ListRoomMessages(
	ctxt context.Context, roomID string, limit, offset int,
) ([]Message, error) {
	var messages []Message
	if err := s.db.WithContext(ctxt).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error; err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to list messages of room %s", roomID,
		)
		return nil, err
	}
	return messages, nil
}

// UpdateMessage replace a message's content
func (s *messageStoreImpl) UpdateMessage(
	ctxt context.Context, messageID, newContent string,
) (Message, error) {
	message, err := s.GetMessage(ctxt, messageID)
	if err != nil {
		return Message{}, err
	}
	message.Content = newContent
	if err := s.db.WithContext(ctxt).Save(&message).Error; err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to update message %s", messageID,
		)
		return Message{}, err
	}
	return message, nil
}

// DeleteMessage remove a message
func (s *messageStoreImpl) DeleteMessage(ctxt context.Context, messageID string) error {
	result := s.db.WithContext(ctxt).Delete(&Message{}, "id = ?", messageID)
	if result.Error != nil {
		log.WithError(result.Error).WithFields(s.LogTags).Errorf(
			"Unable to delete message %s", messageID,
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
