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

package realtime

import (
	"encoding/json"
	"time"

	"github.com/alwitt/chatmq/storage"
)

// Server to client event types
const (
	EventNewMessage     = "new_message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventUserTyping     = "user_typing"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventError          = "error"
)

// Client to server event types
const (
	ClientJoinRoom    = "join_room"
	ClientLeaveRoom   = "leave_room"
	ClientSendMessage = "send_message"
	ClientTypingStart = "typing_start"
	ClientTypingStop  = "typing_stop"
)

// ClientEnvelope the JSON envelope wrapping every client to server frame
type ClientEnvelope struct {
	// Event names the requested operation
	Event string `json:"event"`
	// Data is the operation specific payload
	Data json.RawMessage `json:"data"`
}

// Event one server to client frame
type Event struct {
	// Type names the event
	Type string `json:"event"`
	// RoomID scopes the event to a room, when applicable
	RoomID string `json:"room,omitempty"`
	// Data is the event specific payload
	Data interface{} `json:"data,omitempty"`
	// Timestamp is when the event was emitted
	Timestamp time.Time `json:"timestamp"`
}

// MessagePayload the message fields carried on message events
type MessagePayload struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content,omitempty"`
	Type       string    `json:"type,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserPayload the user fields carried on membership and typing events
type UserPayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Typing *bool  `json:"typing,omitempty"`
	Online *bool  `json:"online,omitempty"`
}

// ErrorPayload the payload of an error event
type ErrorPayload struct {
	Message string `json:"message"`
}

func messageToPayload(msg storage.Message, senderName string) MessagePayload {
	return MessagePayload{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderName: senderName,
		Content:    msg.Content,
		Type:       msg.Type,
		CreatedAt:  msg.CreatedAt,
		UpdatedAt:  msg.UpdatedAt,
	}
}

// NewMessageEvent a message was posted to a room
func NewMessageEvent(msg storage.Message, senderName string) Event {
	return Event{
		Type:      EventNewMessage,
		RoomID:    msg.RoomID,
		Data:      messageToPayload(msg, senderName),
		Timestamp: time.Now().UTC(),
	}
}

// MessageEditedEvent a room message was edited
func MessageEditedEvent(msg storage.Message, senderName string) Event {
	return Event{
		Type:      EventMessageEdited,
		RoomID:    msg.RoomID,
		Data:      messageToPayload(msg, senderName),
		Timestamp: time.Now().UTC(),
	}
}

// MessageDeletedEvent a room message was deleted
func MessageDeletedEvent(roomID, messageID string) Event {
	return Event{
		Type:      EventMessageDeleted,
		RoomID:    roomID,
		Data:      MessagePayload{ID: messageID, RoomID: roomID},
		Timestamp: time.Now().UTC(),
	}
}

// UserJoinedEvent a user joined a room's broadcast group
func UserJoinedEvent(roomID, userID, name string) Event {
	return Event{
		Type:      EventUserJoined,
		RoomID:    roomID,
		Data:      UserPayload{UserID: userID, Name: name},
		Timestamp: time.Now().UTC(),
	}
}

// UserLeftEvent a user left a room's broadcast group
func UserLeftEvent(roomID, userID, name string) Event {
	return Event{
		Type:      EventUserLeft,
		RoomID:    roomID,
		Data:      UserPayload{UserID: userID, Name: name},
		Timestamp: time.Now().UTC(),
	}
}

// UserTypingEvent a user started or stopped typing in a room
func UserTypingEvent(roomID, userID, name string, typing bool) Event {
	return Event{
		Type:      EventUserTyping,
		RoomID:    roomID,
		Data:      UserPayload{UserID: userID, Name: name, Typing: &typing},
		Timestamp: time.Now().UTC(),
	}
}

// UserOnlineEvent a user came online
func UserOnlineEvent(userID, name string) Event {
	online := true
	return Event{
		Type:      EventUserOnline,
		Data:      UserPayload{UserID: userID, Name: name, Online: &online},
		Timestamp: time.Now().UTC(),
	}
}

// UserOfflineEvent a user went offline
func UserOfflineEvent(userID, name string) Event {
	online := false
	return Event{
		Type:      EventUserOffline,
		Data:      UserPayload{UserID: userID, Name: name, Online: &online},
		Timestamp: time.Now().UTC(),
	}
}

// ErrorEvent an operation failed; the connection stays open
func ErrorEvent(message string) Event {
	return Event{
		Type:      EventError,
		Data:      ErrorPayload{Message: message},
		Timestamp: time.Now().UTC(),
	}
}
