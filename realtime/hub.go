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
	"encoding/json"
	"errors"
	"time"

	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/storage"
	"github.com/apex/log"
)

// Hub routes client frames to the registry, broadcast groups, and message
// service, and tears sessions down on disconnect
type Hub interface {
	SessionHandler
	// Connect register a freshly authenticated session
	Connect(ctxt context.Context, session Session) error
}

// hubImpl implements Hub
type hubImpl struct {
	common.Component
	registry  SessionRegistry
	groups    BroadcastGroups
	service   MessageService
	rooms     storage.RoomStore
	opTimeout time.Duration
}

// GetHub define a new Hub
func GetHub(
	registry SessionRegistry,
	groups BroadcastGroups,
	service MessageService,
	rooms storage.RoomStore,
	dbConfig common.DatabaseConfig,
) (Hub, error) {
	logTags := log.Fields{
		"module":    "realtime",
		"component": "hub",
	}
	return &hubImpl{
		Component: common.Component{LogTags: logTags},
		registry:  registry,
		groups:    groups,
		service:   service,
		rooms:     rooms,
		opTimeout: time.Second * time.Duration(dbConfig.OpTimeout),
	}, nil
}

// roomScopedRequest the payload of room scoped client frames
type roomScopedRequest struct {
	RoomID string `json:"room_id"`
}

// sendMessageRequest the payload of a send_message frame
type sendMessageRequest struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// Connect register a freshly authenticated session
func (h *hubImpl) Connect(ctxt context.Context, session Session) error {
	return h.registry.Register(ctxt, session)
}

// HandleInbound process one client frame
func (h *hubImpl) HandleInbound(
	ctxt context.Context, session Session, envelope ClientEnvelope,
) {
	switch envelope.Event {
	case ClientJoinRoom:
		h.handleJoin(ctxt, session, envelope.Data)
	case ClientLeaveRoom:
		h.handleLeave(session, envelope.Data)
	case ClientSendMessage:
		h.handleSend(ctxt, session, envelope.Data)
	case ClientTypingStart:
		h.handleTyping(session, envelope.Data, true)
	case ClientTypingStop:
		h.handleTyping(session, envelope.Data, false)
	default:
		session.SendEvent(ErrorEvent("unknown event"))
	}
}

// HandleDisconnect process a session teardown
func (h *hubImpl) HandleDisconnect(ctxt context.Context, session Session) {
	user := session.User()
	// Leave every broadcast group before the registry entry goes; no
	// broadcast after this point can reach the dead session
	for _, roomID := range h.groups.DropSession(session) {
		h.groups.Broadcast(roomID, UserLeftEvent(roomID, user.ID, user.Name), nil)
	}
	if err := h.registry.Unregister(ctxt, session); err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf(
			"Unregister of session %s failed", session.ID(),
		)
	}
}

// handleJoin subscribe a session to a room's broadcast group. Membership is
// re-validated against the record store; a non-member may join a public room
// and is persisted as a member in the process.
func (h *hubImpl) handleJoin(ctxt context.Context, session Session, data json.RawMessage) {
	var request roomScopedRequest
	if err := json.Unmarshal(data, &request); err != nil || request.RoomID == "" {
		session.SendEvent(ErrorEvent("join_room requires room_id"))
		return
	}
	user := session.User()

	storeCtxt, cancel := context.WithTimeout(ctxt, h.opTimeout)
	defer cancel()
	member, err := h.rooms.IsMember(storeCtxt, request.RoomID, user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			session.SendEvent(ErrorEvent("room not found"))
		} else {
			session.SendEvent(ErrorEvent("room lookup failed"))
		}
		return
	}
	if !member {
		room, err := h.rooms.GetRoom(storeCtxt, request.RoomID)
		if err != nil {
			session.SendEvent(ErrorEvent("room lookup failed"))
			return
		}
		if room.Private {
			session.SendEvent(ErrorEvent("not a member of this room"))
			return
		}
		// Public room grants membership on join
		if _, err := h.rooms.AddMember(storeCtxt, request.RoomID, user.ID); err != nil &&
			!errors.Is(err, storage.ErrAlreadyMember) {
			log.WithError(err).WithFields(h.LogTags).Errorf(
				"Implicit membership grant in room %s failed", request.RoomID,
			)
			session.SendEvent(ErrorEvent("unable to join room"))
			return
		}
	}

	h.groups.Subscribe(request.RoomID, session)
	h.groups.Broadcast(
		request.RoomID, UserJoinedEvent(request.RoomID, user.ID, user.Name), session,
	)
	log.WithFields(h.LogTags).Debugf(
		"Session %s joined room %s", session.ID(), request.RoomID,
	)
}

// handleLeave unsubscribe a session from a room's broadcast group. The
// persisted room membership is untouched.
func (h *hubImpl) handleLeave(session Session, data json.RawMessage) {
	var request roomScopedRequest
	if err := json.Unmarshal(data, &request); err != nil || request.RoomID == "" {
		session.SendEvent(ErrorEvent("leave_room requires room_id"))
		return
	}
	if !h.groups.Unsubscribe(request.RoomID, session) {
		return
	}
	user := session.User()
	h.groups.Broadcast(
		request.RoomID, UserLeftEvent(request.RoomID, user.ID, user.Name), session,
	)
}

// handleSend run a send_message frame through the message service
func (h *hubImpl) handleSend(ctxt context.Context, session Session, data json.RawMessage) {
	var request sendMessageRequest
	if err := json.Unmarshal(data, &request); err != nil || request.RoomID == "" {
		session.SendEvent(ErrorEvent("send_message requires room_id"))
		return
	}
	if request.Type == "" {
		request.Type = "text"
	}
	if _, err := h.service.SendMessage(
		ctxt, session.User(), request.RoomID, request.Content, request.Type,
	); err != nil {
		switch {
		case errors.Is(err, ErrInvalidMessage):
			session.SendEvent(ErrorEvent("invalid message payload"))
		case errors.Is(err, storage.ErrNotFound):
			session.SendEvent(ErrorEvent("room not found"))
		case errors.Is(err, storage.ErrNotMember):
			session.SendEvent(ErrorEvent("not a member of this room"))
		default:
			session.SendEvent(ErrorEvent("unable to send message"))
		}
	}
}

// handleTyping broadcast a typing indicator; fire-and-forget
func (h *hubImpl) handleTyping(session Session, data json.RawMessage, typing bool) {
	var request roomScopedRequest
	if err := json.Unmarshal(data, &request); err != nil || request.RoomID == "" {
		session.SendEvent(ErrorEvent("typing events require room_id"))
		return
	}
	// Only subscribed sessions may signal typing
	if !h.groups.IsSubscribed(request.RoomID, session) {
		return
	}
	user := session.User()
	h.groups.Broadcast(
		request.RoomID,
		UserTypingEvent(request.RoomID, user.ID, user.Name, typing),
		session,
	)
}
