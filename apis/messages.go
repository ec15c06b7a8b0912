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

package apis

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alwitt/chatmq/auth"
	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/realtime"
	"github.com/alwitt/chatmq/storage"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// message history paging bounds
const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 200
)

// APIRestMessageHandler REST handler for message operations. Sends, edits,
// and deletes run through the same MessageService as the websocket surface,
// so REST-originated messages fan out to live sessions as well.
type APIRestMessageHandler struct {
	goutils.RestAPIHandler
	service  realtime.MessageService
	messages storage.MessageStore
	rooms    storage.RoomStore
	validate *validator.Validate
}

// GetAPIRestMessageHandler define APIRestMessageHandler
func GetAPIRestMessageHandler(
	service realtime.MessageService,
	messages storage.MessageStore,
	rooms storage.RoomStore,
	httpConfig *common.HTTPConfig,
) (APIRestMessageHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "messages",
	}
	return APIRestMessageHandler{
		RestAPIHandler: getRestAPIHandler(logTags, httpConfig),
		service:        service,
		messages:       messages,
		rooms:          rooms,
		validate:       validator.New(),
	}, nil
}

// APIRestRespMessageInfo one message presented over REST
type APIRestRespMessageInfo struct {
	// ID is the message ID
	ID string `json:"id"`
	// RoomID is the room the message belongs to
	RoomID string `json:"room_id"`
	// SenderID is the sending user's ID
	SenderID string `json:"sender_id"`
	// Content is the message body
	Content string `json:"content"`
	// Type is the message type
	Type string `json:"type"`
	// CreatedAt is the message creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the message's last change timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

func convertMessageInfo(original storage.Message) APIRestRespMessageInfo {
	return APIRestRespMessageInfo{
		ID:        original.ID,
		RoomID:    original.RoomID,
		SenderID:  original.SenderID,
		Content:   original.Content,
		Type:      original.Type,
		CreatedAt: original.CreatedAt,
		UpdatedAt: original.UpdatedAt,
	}
}

// APIRestRespMessage response carrying one message
type APIRestRespMessage struct {
	goutils.RestAPIBaseResponse
	// Message the message details
	Message APIRestRespMessageInfo `json:"message"`
}

// APIRestRespMessageList response carrying a page of messages
type APIRestRespMessageList struct {
	goutils.RestAPIBaseResponse
	// Messages the page of messages, newest first
	Messages []APIRestRespMessageInfo `json:"messages"`
}

// APIRestReqSendMessage request body for sending a message
type APIRestReqSendMessage struct {
	// RoomID is the target room
	RoomID string `json:"room_id" validate:"required"`
	// Content is the message body
	Content string `json:"content" validate:"required,min=1,max=2000"`
	// Type is the message type; defaults to "text"
	Type string `json:"type" validate:"omitempty,oneof=text image file"`
}

// APIRestReqEditMessage request body for editing a message
type APIRestReqEditMessage struct {
	// Content is the replacement message body
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

// requesterIdentity fetch the authenticated identity, or report 401
func (h APIRestMessageHandler) requesterIdentity(
	r *http.Request, respCode *int, respBody *interface{},
) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		msg := "No authenticated identity"
		*respCode = http.StatusUnauthorized
		*respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusUnauthorized, msg, msg)
	}
	return identity, ok
}

// -----------------------------------------------------------------------

// SendMessage godoc
// @Summary Send a message
// @Description Persist a new message in a room and fan it out to live sessions
// @tags Messages
// @Accept json
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param message body APIRestReqSendMessage true "Message to send"
// @Success 200 {object} APIRestRespMessage "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/messages [post]
func (h APIRestMessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	identity, ok := h.requesterIdentity(r, &respCode, &respBody)
	if !ok {
		return
	}

	var params APIRestReqSendMessage
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if err := h.validate.Struct(&params); err != nil {
		msg := "Invalid message parameters"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if params.Type == "" {
		params.Type = "text"
	}

	message, err := h.service.SendMessage(
		r.Context(), identity, params.RoomID, params.Content, params.Type,
	)
	if err != nil {
		msg := "Unable to send message"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespMessage{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Message: convertMessageInfo(message),
	}
}

// SendMessageHandler Wrapper around SendMessage
func (h APIRestMessageHandler) SendMessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.SendMessage(w, r)
	}
}

// -----------------------------------------------------------------------

// ListRoomMessages godoc
// @Summary Fetch room message history
// @Description Fetch a page of a room's messages, newest first; members only
// @tags Messages
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param roomID path string true "Room ID"
// @Param limit query integer false "Page size, max 200. Defaults to 50"
// @Param offset query integer false "Messages to skip from the newest. Defaults to 0"
// @Success 200 {object} APIRestRespMessageList "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 403 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/messages/room/{roomID} [get]
func (h APIRestMessageHandler) ListRoomMessages(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	identity, ok := h.requesterIdentity(r, &respCode, &respBody)
	if !ok {
		return
	}
	roomID, ok := mux.Vars(r)["roomID"]
	if !ok || roomID == "" {
		msg := "No room ID provided"
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	limit := defaultMessagePageSize
	if param := r.URL.Query().Get("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 1 {
			msg := "Invalid page limit"
			respCode = http.StatusBadRequest
			respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
			return
		}
		limit = parsed
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}
	offset := 0
	if param := r.URL.Query().Get("offset"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 0 {
			msg := "Invalid page offset"
			respCode = http.StatusBadRequest
			respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
			return
		}
		offset = parsed
	}

	member, err := h.rooms.IsMember(r.Context(), roomID, identity.ID)
	if err != nil {
		msg := "Unable to fetch room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	if !member {
		msg := "Not a member of this room"
		respCode = http.StatusForbidden
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusForbidden, msg, msg)
		return
	}

	messages, err := h.messages.ListRoomMessages(r.Context(), roomID, limit, offset)
	if err != nil {
		msg := "Unable to list messages"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	converted := make([]APIRestRespMessageInfo, 0, len(messages))
	for _, message := range messages {
		converted = append(converted, convertMessageInfo(message))
	}
	respCode = http.StatusOK
	respBody = APIRestRespMessageList{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Messages: converted,
	}
}

// ListRoomMessagesHandler Wrapper around ListRoomMessages
func (h APIRestMessageHandler) ListRoomMessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ListRoomMessages(w, r)
	}
}

// -----------------------------------------------------------------------

// EditMessage godoc
// @Summary Edit a message
// @Description Replace a message's content; sender only
// @tags Messages
// @Accept json
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param messageID path string true "Message ID"
// @Param message body APIRestReqEditMessage true "Replacement content"
// @Success 200 {object} APIRestRespMessage "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 403 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/messages/{messageID} [put]
func (h APIRestMessageHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	identity, ok := h.requesterIdentity(r, &respCode, &respBody)
	if !ok {
		return
	}
	messageID, ok := mux.Vars(r)["messageID"]
	if !ok || messageID == "" {
		msg := "No message ID provided"
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	var params APIRestReqEditMessage
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if err := h.validate.Struct(&params); err != nil {
		msg := "Invalid message parameters"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	message, err := h.service.EditMessage(r.Context(), identity, messageID, params.Content)
	if err != nil {
		msg := "Unable to edit message"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespMessage{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Message: convertMessageInfo(message),
	}
}

// EditMessageHandler Wrapper around EditMessage
func (h APIRestMessageHandler) EditMessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.EditMessage(w, r)
	}
}

// -----------------------------------------------------------------------

// DeleteMessage godoc
// @Summary Delete a message
// @Description Remove a message; sender only
// @tags Messages
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param messageID path string true "Message ID"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 403 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/messages/{messageID} [delete]
func (h APIRestMessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	identity, ok := h.requesterIdentity(r, &respCode, &respBody)
	if !ok {
		return
	}
	messageID, ok := mux.Vars(r)["messageID"]
	if !ok || messageID == "" {
		msg := "No message ID provided"
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	if err := h.service.DeleteMessage(r.Context(), identity, messageID); err != nil {
		msg := "Unable to delete message"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// DeleteMessageHandler Wrapper around DeleteMessage
func (h APIRestMessageHandler) DeleteMessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.DeleteMessage(w, r)
	}
}
