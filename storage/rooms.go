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

// RoomStore persistence operations on chat rooms and their membership
type RoomStore interface {
	// CreateRoom record a new room; the owner becomes its first member
	CreateRoom(ctxt context.Context, name string, private bool, ownerID string) (Room, error)
	// GetRoom fetch one room with its member set
	GetRoom(ctxt context.Context, roomID string) (Room, error)
	// ListRoomsForUser list rooms visible to a user: all public rooms plus
	// private rooms the user is a member of
	ListRoomsForUser(ctxt context.Context, userID string) ([]Room, error)
	// SearchRooms find public rooms whose name contains the query string
	SearchRooms(ctxt context.Context, query string, limit int) ([]Room, error)
	// UpdateRoom change a room's name or privacy flag
	UpdateRoom(ctxt context.Context, roomID, newName string, private bool) (Room, error)
	// DeleteRoom remove a room and its membership records
	DeleteRoom(ctxt context.Context, roomID string) error
	// AddMember record a user as a room member
	AddMember(ctxt context.Context, roomID, userID string) (Room, error)
	// RemoveMember remove a user from a room's member set
	RemoveMember(ctxt context.Context, roomID, userID string) error
	// IsMember check whether a user is a member of a room
	IsMember(ctxt context.Context, roomID, userID string) (bool, error)
	// ListMembers fetch the member identities of a room
	ListMembers(ctxt context.Context, roomID string) ([]User, error)
}

// roomStoreImpl implements RoomStore
type roomStoreImpl struct {
	common.Component
	db *gorm.DB
}

// GetRoomStore define a new RoomStore
func GetRoomStore(db *gorm.DB) (RoomStore, error) {
	logTags := log.Fields{
		"module":    "storage",
		"component": "room-store",
	}
	return &roomStoreImpl{Component: common.Component{LogTags: logTags}, db: db}, nil
}

// CreateRoom record a new room; the owner becomes its first member
func (s *roomStoreImpl) CreateRoom(
	ctxt context.Context, name string, private bool, ownerID string,
) (Room, error) {
	var owner User
	if err := s.db.WithContext(ctxt).First(&owner, "id = ?", ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Room{}, ErrNotFound
		}
		return Room{}, err
	}
	room := Room{
		ID:      uuid.New().String(),
		Name:    name,
		Private: private,
		OwnerID: ownerID,
		Members: []User{owner},
	}
	if err := s.db.WithContext(ctxt).Create(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Room{}, ErrDuplicateName
		}
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to create room %s", name)
		return Room{}, err
	}
	return room, nil
}

// GetRoom fetch one room with its member set
func (s *roomStoreImpl) GetRoom(ctxt context.Context, roomID string) (Room, error) {
	var room Room
	if err := s.db.WithContext(ctxt).
		Preload("Members").
		First(&room, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Room{}, ErrNotFound
		}
		return Room{}, err
	}
	return room, nil
}

// ListRoomsForUser list rooms visible to a user
func (s *roomStoreImpl) ListRoomsForUser(
	ctxt context.Context, userID string,
) ([]Room, error) {
	var rooms []Room
	if err := s.db.WithContext(ctxt).
		Distinct("rooms.*").
		Joins("LEFT JOIN room_members ON room_members.room_id = rooms.id").
		Where("rooms.private = ? OR room_members.user_id = ?", false, userID).
		Order("rooms.name").
		Find(&rooms).Error; err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to list rooms for %s", userID)
		return nil, err
	}
	return rooms, nil
}

// SearchRooms find public rooms whose name contains the query string
func (s *roomStoreImpl) SearchRooms(
	ctxt context.Context, query string, limit int,
) ([]Room, error) {
	var rooms []Room
	if err := s.db.WithContext(ctxt).
		Where("private = ? AND name LIKE ?", false, "%"+query+"%").
		Order("name").
		Limit(limit).
		Find(&rooms).Error; err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Room search '%s' failed", query)
		return nil, err
	}
	return rooms, nil
}

// UpdateRoom change a room's name or privacy flag
func (s *roomStoreImpl) UpdateRoom(
	ctxt context.Context, roomID, newName string, private bool,
) (Room, error) {
	room, err := s.GetRoom(ctxt, roomID)
	if err != nil {
		return Room{}, err
	}
	room.Name = newName
	room.Private = private
	if err := s.db.WithContext(ctxt).Save(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Room{}, ErrDuplicateName
		}
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to update room %s", roomID)
		return Room{}, err
	}
	return room, nil
}

// DeleteRoom remove a room and its membership records
func (s *roomStoreImpl) DeleteRoom(ctxt context.Context, roomID string) error {
	room, err := s.GetRoom(ctxt, roomID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctxt).Model(&room).Association("Members").Clear(); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to clear membership of room %s", roomID,
		)
		return err
	}
	return s.db.WithContext(ctxt).Delete(&room).Error
}

// AddMember record a user as a room member
func (s *roomStoreImpl) AddMember(
	ctxt context.Context, roomID, userID string,
) (Room, error) {
	room, err := s.GetRoom(ctxt, roomID)
	if err != nil {
		return Room{}, err
	}
	for _, member := range room.Members {
		if member.ID == userID {
			return Room{}, ErrAlreadyMember
		}
	}
	var user User
	if err := s.db.WithContext(ctxt).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Room{}, ErrNotFound
		}
		return Room{}, err
	}
	if err := s.db.WithContext(ctxt).Model(&room).Association("Members").Append(&user); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to add %s to room %s", userID, roomID,
		)
		return Room{}, err
	}
	return s.GetRoom(ctxt, roomID)
}

// RemoveMember remove a user from a room's member set
func (s *roomStoreImpl) RemoveMember(ctxt context.Context, roomID, userID string) error {
	room, err := s.GetRoom(ctxt, roomID)
	if err != nil {
		return err
	}
	found := false
	for _, member := range room.Members {
		if member.ID == userID {
			found = true
			break
		}
	}
	if !found {
		return ErrNotMember
	}
	if err := s.db.WithContext(ctxt).Model(&room).Association("Members").Delete(
		&User{ID: userID},
	); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to remove %s from room %s", userID, roomID,
		)
		return err
	}
	return nil
}

// IsMember check whether a user is a member of a room
func (s *roomStoreImpl) IsMember(ctxt context.Context, roomID, userID string) (bool, error) {
	// Verify the room exists first so an absent room is not reported as
	// a non-membership
	var room Room
	if err := s.db.WithContext(ctxt).First(&room, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	var count int64
	if err := s.db.WithContext(ctxt).
		Table("room_members").
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListMembers fetch the member identities of a room
func (s *roomStoreImpl) ListMembers(ctxt context.Context, roomID string) ([]User, error) {
	room, err := s.GetRoom(ctxt, roomID)
	if err != nil {
		return nil, err
	}
	return room.Members, nil
}
