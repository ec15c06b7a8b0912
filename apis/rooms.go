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
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alwitt/chatmq/auth"
	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/fanout"
	"github.com/alwitt/chatmq/storage"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// APIRestRoomHandler REST handler for room management
type APIRestRoomHandler struct {
	goutils.RestAPIHandler
	rooms     storage.RoomStore
	publisher fanout.EventPublisher
	validate  *validator.Validate
}

// GetAPIRestRoomHandler define APIRestRoomHandler
func GetAPIRestRoomHandler(
	rooms storage.RoomStore,
	publisher fanout.EventPublisher,
	httpConfig *common.HTTPConfig,
) (APIRestRoomHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "rooms",
	}
	return APIRestRoomHandler{
		RestAPIHandler: getRestAPIHandler(logTags, httpConfig),
		rooms:          rooms,
		publisher:      publisher,
		validate:       validator.New(),
	}, nil
}

// APIRestRespRoomInfo one room presented over REST
type APIRestRespRoomInfo struct {
	// ID is the room ID
	ID string `json:"id"`
	// Name is the unique room name
	Name string `json:"name"`
	// Private indicates whether membership requires a grant
	Private bool `json:"private"`
	// OwnerID is the room creator's user ID
	OwnerID string `json:"owner_id"`
	// Members is the room's member set
	Members []storage.UserSummary `json:"members,omitempty"`
	// CreatedAt is the room creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the room's last change timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

func convertRoomInfo(original storage.Room) APIRestRespRoomInfo {
	members := make([]storage.UserSummary, 0, len(original.Members))
	for _, member := range original.Members {
		members = append(members, member.Summary())
	}
	return APIRestRespRoomInfo{
		ID:        original.ID,
		Name:      original.Name,
		Private:   original.Private,
		OwnerID:   original.OwnerID,
		Members:   members,
		CreatedAt: original.CreatedAt,
		UpdatedAt: original.UpdatedAt,
	}
}

// APIRestRespRoom response carrying one room
type APIRestRespRoom struct {
	goutils.RestAPIBaseResponse
	// Room the room details
	Room APIRestRespRoomInfo `json:"room"`
}

// APIRestRespRoomList response carrying a set of rooms
type APIRestRespRoomList struct {
	goutils.RestAPIBaseResponse
	// Rooms the matching rooms
	Rooms []APIRestRespRoomInfo `json:"rooms"`
}

// APIRestRespMemberList response carrying a room's member set
type APIRestRespMemberList struct {
	goutils.RestAPIBaseResponse
	// Members the room's member set
	Members []storage.UserSummary `json:"members"`
}

// APIRestReqRoomSettings request body defining room parameters
type APIRestReqRoomSettings struct {
	// Name is the unique room name
	Name string `json:"name" validate:"required,min=1,max=64"`
	// Private indicates whether membership requires a grant
	Private bool `json:"private"`
}

// requesterIdentity fetch the authenticated identity, or report 401
func (h APIRestRoomHandler) requesterIdentity(
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

// submitActivityTask queue a room activity record; best-effort, the
// membership change is already durable
func (h APIRestRoomHandler) submitActivityTask(
	ctxt context.Context, kind, roomID, userID string,
) {
	if err := h.publisher.SubmitTask(ctxt, fanout.QueueRoomActivities, fanout.Task{
		Kind:   kind,
		RoomID: roomID,
		UserID: userID,
	}); err != nil {
		log.WithError(err).WithFields(h.GetLogTagsForContext(ctxt)).Errorf(
			"Task submission to %s failed", fanout.QueueRoomActivities,
		)
	}
}

// roomIDFromRequest fetch the path room ID, or report 400
func (h APIRestRoomHandler) roomIDFromRequest(
	r *http.Request, respCode *int, respBody *interface{},
) (string, bool) {
	roomID, ok := mux.Vars(r)["roomID"]
	if !ok || roomID == "" {
		msg := "No room ID provided"
		*respCode = http.StatusBadRequest
		*respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return "", false
	}
	return roomID, true
}

// -----------------------------------------------------------------------

// CreateRoom godoc
// @Summary Define new room
// @Description Create a new chat room owned by the caller
// @tags Rooms
// @Accept json
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param setting body APIRestReqRoomSettings true "Room settings"
// @Success 200 {object} APIRestRespRoom "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 409 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/rooms [post]
func (h APIRestRoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
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

	var params APIRestReqRoomSettings
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if err := h.validate.Struct(&params); err != nil {
		msg := "Invalid room parameters"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	room, err := h.rooms.CreateRoom(r.Context(), params.Name, params.Private, identity.ID)
	if err != nil {
		msg := "Unable to create room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespRoom{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Room: convertRoomInfo(room),
	}
}

// CreateRoomHandler Wrapper around CreateRoom
func (h APIRestRoomHandler) CreateRoomHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.CreateRoom(w, r)
	}
}

// -----------------------------------------------------------------------

// ListRooms godoc
// @Summary List visible rooms
// @Description List all public rooms plus private rooms the caller belongs to
// @tags Rooms
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespRoomList "success"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/rooms [get]
func (h APIRestRoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
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

	rooms, err := h.rooms.ListRoomsForUser(r.Context(), identity.ID)
	if err != nil {
		msg := "Unable to list rooms"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	converted := make([]APIRestRespRoomInfo, 0, len(rooms))
	for _, room := range rooms {
		converted = append(converted, convertRoomInfo(room))
	}
	respCode = http.StatusOK
	respBody = APIRestRespRoomList{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Rooms: converted,
	}
}

// ListRoomsHandler Wrapper around ListRooms
func (h APIRestRoomHandler) ListRoomsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ListRooms(w, r)
	}
}

// -----------------------------------------------------------------------

// SearchRooms godoc
// @Summary Search public rooms
// @Description Find public rooms whose name contains the query string
// @tags Rooms
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param q query string true "Name substring to search for"
// @Success 200 {object} APIRestRespRoomList "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/rooms/search [get]
func (h APIRestRoomHandler) SearchRooms(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	query := r.URL.Query().Get("q")
	if query == "" {
		msg := "No search query provided"
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	rooms, err := h.rooms.SearchRooms(r.Context(), query, defaultSearchLimit)
	if err != nil {
		msg := "Room search failed"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	converted := make([]APIRestRespRoomInfo, 0, len(rooms))
	for _, room := range rooms {
		converted = append(converted, convertRoomInfo(room))
	}
	respCode = http.StatusOK
	respBody = APIRestRespRoomList{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Rooms: converted,
	}
}

// SearchRoomsHandler Wrapper around SearchRooms
func (h APIRestRoomHandler) SearchRoomsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.SearchRooms(w, r)
	}
}

// -----------------------------------------------------------------------

// GetRoom godoc
// @Summary Query for one room
// @Description Fetch the details of one room; private rooms require membership
// @tags Rooms
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param roomID path string true "Room ID"
// @Success 200 {object} APIRestRespRoom "success"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 403 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/rooms/{roomID} [get]
func (h APIRestRoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
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
	roomID, ok := h.roomIDFromRequest(r, &respCode, &respBody)
	if !ok {
		return
	}

	room, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		msg := "Unable to fetch room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	if room.Private && !roomHasMember(room, identity.ID) {
		msg := "Not a member of this room"
		respCode = http.StatusForbidden
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusForbidden, msg, msg)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespRoom{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Room: convertRoomInfo(room),
	}
}

// GetRoomHandler Wrapper around GetRoom
func (h APIRestRoomHandler) GetRoomHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.GetRoom(w, r)
	}
}

func roomHasMember(room storage.Room, userID string) bool {
	for _, member := range room.Members {
		if member.ID == userID {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------

// UpdateRoom godoc
// @Summary Update one room
// @Description Change a room's name or privacy flag; owner only
// @tags Rooms
// @Accept json
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param roomID path string true "Room ID"
// @Param setting body APIRestReqRoomSettings true "New room settings"
// @Success 200 {object} APIRestRespRoom "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 403 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/rooms/{roomID} [put]
func (h APIRestRoomHandler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
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
	roomID, ok := h.roomIDFromRequest(r, &respCode, &respBody)
	if !ok {
		return
	}

	var params APIRestReqRoomSettings
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if err := h.validate.Struct(&params); err != nil {
		msg := "Invalid room parameters"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	room, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		msg := "Unable to fetch room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	if room.OwnerID != identity.ID {
		msg := "Only the room owner may update it"
		respCode = http.StatusForbidden
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusForbidden, msg, msg)
		return
	}

	updated, err := h.rooms.UpdateRoom(r.Context(), roomID, params.Name, params.Private)
	if err != nil {
		msg := "Unable to update room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespRoom{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Room: convertRoomInfo(updated),
	}
}

// UpdateRoomHandler Wrapper around UpdateRoom
func (h APIRestRoomHandler) UpdateRoomHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.UpdateRoom(w, r)
	}
}

// -----------------------------------------------------------------------

// DeleteRoom godoc
// @Summary Delete one room
// @Description Remove a room and its membership records; owner only
// @tags Rooms
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param roomID path string true "Room ID"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 403 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/rooms/{roomID} [delete]
func (h APIRestRoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
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
	roomID, ok := h.roomIDFromRequest(r, &respCode, &respBody)
	if !ok {
		return
	}

	room, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		msg := "Unable to fetch room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	if room.OwnerID != identity.ID {
		msg := "Only the room owner may delete it"
		respCode = http.StatusForbidden
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusForbidden, msg, msg)
		return
	}

	if err := h.rooms.DeleteRoom(r.Context(), roomID); err != nil {
		msg := "Unable to delete room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// DeleteRoomHandler Wrapper around DeleteRoom
func (h APIRestRoomHandler) DeleteRoomHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.DeleteRoom(w, r)
	}
}

// -----------------------------------------------------------------------

// JoinRoom godoc
// @Summary Join one room
// @Description Add the caller to a room's member set; private rooms refuse self-join
// @tags Rooms
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param roomID path string true "Room ID"
// @Success 200 {object} APIRestRespRoom "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 403 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/rooms/{roomID}/join [post]
func (h APIRestRoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
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
	roomID, ok := h.roomIDFromRequest(r, &respCode, &respBody)
	if !ok {
		return
	}

	room, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		msg := "Unable to fetch room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	if room.Private && !roomHasMember(room, identity.ID) {
		msg := "Private rooms refuse self-join"
		respCode = http.StatusForbidden
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusForbidden, msg, msg)
		return
	}

	updated, err := h.rooms.AddMember(r.Context(), roomID, identity.ID)
	if err != nil {
		msg := "Unable to join room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	h.submitActivityTask(r.Context(), "room_join", roomID, identity.ID)

	respCode = http.StatusOK
	respBody = APIRestRespRoom{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Room: convertRoomInfo(updated),
	}
}

// JoinRoomHandler Wrapper around JoinRoom
func (h APIRestRoomHandler) JoinRoomHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.JoinRoom(w, r)
	}
}

// -----------------------------------------------------------------------

// LeaveRoom godoc
// @Summary Leave one room
// @Description Remove the caller from a room's member set; the owner cannot leave
// @tags Rooms
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param roomID path string true "Room ID"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/rooms/{roomID}/leave [post]
func (h APIRestRoomHandler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
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
	roomID, ok := h.roomIDFromRequest(r, &respCode, &respBody)
	if !ok {
		return
	}

	room, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		msg := "Unable to fetch room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	if room.OwnerID == identity.ID {
		msg := "The room owner cannot leave"
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	if err := h.rooms.RemoveMember(r.Context(), roomID, identity.ID); err != nil {
		msg := "Unable to leave room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	h.submitActivityTask(r.Context(), "room_leave", roomID, identity.ID)

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// LeaveRoomHandler Wrapper around LeaveRoom
func (h APIRestRoomHandler) LeaveRoomHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.LeaveRoom(w, r)
	}
}

// -----------------------------------------------------------------------

// ListMembers godoc
// @Summary List room members
// @Description Fetch the member set of one room; private rooms require membership
// @tags Rooms
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param roomID path string true "Room ID"
// @Success 200 {object} APIRestRespMemberList "success"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 403 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/rooms/{roomID}/members [get]
func (h APIRestRoomHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
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
	roomID, ok := h.roomIDFromRequest(r, &respCode, &respBody)
	if !ok {
		return
	}

	room, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		msg := "Unable to fetch room"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	if room.Private && !roomHasMember(room, identity.ID) {
		msg := "Not a member of this room"
		respCode = http.StatusForbidden
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusForbidden, msg, msg)
		return
	}

	members := make([]storage.UserSummary, 0, len(room.Members))
	for _, member := range room.Members {
		members = append(members, member.Summary())
	}
	respCode = http.StatusOK
	respBody = APIRestRespMemberList{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Members: members,
	}
}

// ListMembersHandler Wrapper around ListMembers
func (h APIRestRoomHandler) ListMembersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ListMembers(w, r)
	}
}
