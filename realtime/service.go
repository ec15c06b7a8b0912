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
	"context"
	"errors"
	"time"

	"github.com/alwitt/chatmq/auth"
	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/fanout"
	"github.com/alwitt/chatmq/storage"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidMessage the message payload failed validation
	ErrInvalidMessage = errors.New("invalid message payload")
	// ErrNotSender the caller is not the sender of the message
	ErrNotSender = errors.New("not the message sender")
)

// messagePayloadValidation validation bounds on one message payload
type messagePayloadValidation struct {
	Content string `validate:"required,min=1,max=2000"`
	Type    string `validate:"required,oneof=text image file"`
}

// MessageService the message lifecycle operations shared by the HTTP and
// real-time surfaces. Persistence always precedes fan-out; a failed persist
// produces no broadcast, no event publish, and no queued task.
type MessageService interface {
	// SendMessage persist a new message, then fan it out
	SendMessage(
		ctxt context.Context, sender auth.Identity, roomID, content, msgType string,
	) (storage.Message, error)
	// EditMessage replace a message's content; sender only
	EditMessage(
		ctxt context.Context, sender auth.Identity, messageID, newContent string,
	) (storage.Message, error)
	// DeleteMessage remove a message; sender only
	DeleteMessage(ctxt context.Context, sender auth.Identity, messageID string) error
}

// messageServiceImpl implements MessageService
type messageServiceImpl struct {
	common.Component
	messages  storage.MessageStore
	rooms     storage.RoomStore
	registry  SessionRegistry
	groups    BroadcastGroups
	publisher fanout.EventPublisher
	validate  *validator.Validate
	opTimeout time.Duration
}

// GetMessageService define a new MessageService
func GetMessageService(
	messages storage.MessageStore,
	rooms storage.RoomStore,
	registry SessionRegistry,
	groups BroadcastGroups,
	publisher fanout.EventPublisher,
	dbConfig common.DatabaseConfig,
) (MessageService, error) {
	logTags := log.Fields{
		"module":    "realtime",
		"component": "message-service",
	}
	return &messageServiceImpl{
		Component: common.Component{LogTags: logTags},
		messages:  messages,
		rooms:     rooms,
		registry:  registry,
		groups:    groups,
		publisher: publisher,
		validate:  validator.New(),
		opTimeout: time.Second * time.Duration(dbConfig.OpTimeout),
	}, nil
}

// SendMessage persist a new message, then fan it out
func (s *messageServiceImpl) SendMessage(
	ctxt context.Context, sender auth.Identity, roomID, content, msgType string,
) (storage.Message, error) {
	localLogTags, _ := common.UpdateLogTags(ctxt, s.LogTags)

	if err := s.validate.Struct(&messagePayloadValidation{
		Content: content, Type: msgType,
	}); err != nil {
		log.WithError(err).WithFields(localLogTags).Debug("Rejected message payload")
		return storage.Message{}, ErrInvalidMessage
	}

	storeCtxt, cancel := context.WithTimeout(ctxt, s.opTimeout)
	defer cancel()
	member, err := s.rooms.IsMember(storeCtxt, roomID, sender.ID)
	if err != nil {
		return storage.Message{}, err
	}
	if !member {
		return storage.Message{}, storage.ErrNotMember
	}

	message, err := s.messages.CreateMessage(storeCtxt, roomID, sender.ID, content, msgType)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Message persist in room %s failed", roomID,
		)
		return storage.Message{}, err
	}

	event := NewMessageEvent(message, sender.Name)
	senderSession, _ := s.registry.Lookup(sender.ID)
	s.groups.Broadcast(roomID, event, senderSession)

	// The remaining legs are best-effort; the message is already durable
	if err := s.publisher.PublishRoomEvent(ctxt, roomID, event); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Room event publish for message %s failed", message.ID,
		)
	}
	s.submitTask(ctxt, fanout.QueueMessageProcessing, fanout.Task{
		Kind:      "process_message",
		RoomID:    roomID,
		UserID:    sender.ID,
		MessageID: message.ID,
	})
	s.submitTask(ctxt, fanout.QueueMessageLogging, fanout.Task{
		Kind:      "log_message",
		RoomID:    roomID,
		UserID:    sender.ID,
		MessageID: message.ID,
	})

	return message, nil
}

// EditMessage replace a message's content; sender only
func (s *messageServiceImpl) EditMessage(
	ctxt context.Context, sender auth.Identity, messageID, newContent string,
) (storage.Message, error) {
	localLogTags, _ := common.UpdateLogTags(ctxt, s.LogTags)

	// Same content bounds as SendMessage; the type is fixed at creation
	if err := s.validate.StructPartial(&messagePayloadValidation{
		Content: newContent,
	}, "Content"); err != nil {
		log.WithError(err).WithFields(localLogTags).Debug("Rejected message payload")
		return storage.Message{}, ErrInvalidMessage
	}

	storeCtxt, cancel := context.WithTimeout(ctxt, s.opTimeout)
	defer cancel()
	message, err := s.messages.GetMessage(storeCtxt, messageID)
	if err != nil {
		return storage.Message{}, err
	}
	if message.SenderID != sender.ID {
		return storage.Message{}, ErrNotSender
	}

	updated, err := s.messages.UpdateMessage(storeCtxt, messageID, newContent)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Message %s edit failed", messageID,
		)
		return storage.Message{}, err
	}

	event := MessageEditedEvent(updated, sender.Name)
	senderSession, _ := s.registry.Lookup(sender.ID)
	s.groups.Broadcast(updated.RoomID, event, senderSession)

	if err := s.publisher.PublishRoomEvent(ctxt, updated.RoomID, event); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Room event publish for edit of %s failed", messageID,
		)
	}
	s.submitTask(ctxt, fanout.QueueMessageLogging, fanout.Task{
		Kind:      "log_message_edit",
		RoomID:    updated.RoomID,
		UserID:    sender.ID,
		MessageID: updated.ID,
	})

	return updated, nil
}

// DeleteMessage remove a message; sender only
func (s *messageServiceImpl) DeleteMessage(
	ctxt context.Context, sender auth.Identity, messageID string,
) error {
	localLogTags, _ := common.UpdateLogTags(ctxt, s.LogTags)

	storeCtxt, cancel := context.WithTimeout(ctxt, s.opTimeout)
	defer cancel()
	message, err := s.messages.GetMessage(storeCtxt, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != sender.ID {
		return ErrNotSender
	}

	if err := s.messages.DeleteMessage(storeCtxt, messageID); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Message %s delete failed", messageID,
		)
		return err
	}

	event := MessageDeletedEvent(message.RoomID, messageID)
	senderSession, _ := s.registry.Lookup(sender.ID)
	s.groups.Broadcast(message.RoomID, event, senderSession)

	// Deletes broadcast and publish but queue no task; deleted messages do
	// not enter the processing or logging queues
	if err := s.publisher.PublishRoomEvent(ctxt, message.RoomID, event); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Room event publish for delete of %s failed", messageID,
		)
	}

	return nil
}

func (s *messageServiceImpl) submitTask(
	ctxt context.Context, queue string, task fanout.Task,
) {
	if err := s.publisher.SubmitTask(ctxt, queue, task); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Task submission to %s failed", queue,
		)
	}
}
