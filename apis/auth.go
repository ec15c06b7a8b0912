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

	"github.com/alwitt/chatmq/auth"
	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/presence"
	"github.com/alwitt/chatmq/storage"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

// defaultSearchLimit result cap when a search request gives no limit
const defaultSearchLimit = 25

// APIRestAuthHandler REST handler for identity and credential operations
type APIRestAuthHandler struct {
	goutils.RestAPIHandler
	users    storage.UserStore
	tokens   auth.JWTManager
	presence presence.Cache
	validate *validator.Validate
}

// GetAPIRestAuthHandler define APIRestAuthHandler
//
// The presence cache is optional; pass nil when no mirror is configured.
func GetAPIRestAuthHandler(
	users storage.UserStore,
	tokens auth.JWTManager,
	presenceCache presence.Cache,
	httpConfig *common.HTTPConfig,
) (APIRestAuthHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "auth",
	}
	return APIRestAuthHandler{
		RestAPIHandler: getRestAPIHandler(logTags, httpConfig),
		users:          users,
		tokens:         tokens,
		presence:       presenceCache,
		validate:       validator.New(),
	}, nil
}

// APIRestReqCredentials request body carrying a name and password pair
type APIRestReqCredentials struct {
	// Name is the unique user display name
	Name string `json:"name" validate:"required,min=1,max=64"`
	// Password is the account password
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// APIRestRespUser response carrying one user
type APIRestRespUser struct {
	goutils.RestAPIBaseResponse
	// User the user details
	User storage.UserSummary `json:"user"`
}

// APIRestRespLogin response carrying a fresh bearer token
type APIRestRespLogin struct {
	goutils.RestAPIBaseResponse
	// Token the bearer token for subsequent requests
	Token string `json:"token"`
	// User the authenticated user
	User storage.UserSummary `json:"user"`
}

// APIRestRespUserList response carrying a set of users
type APIRestRespUserList struct {
	goutils.RestAPIBaseResponse
	// Users the matching users
	Users []storage.UserSummary `json:"users"`
}

// -----------------------------------------------------------------------

// RegisterUser godoc
// @Summary Register a new user
// @Description Create a new chat identity from a name and password
// @tags Auth
// @Accept json
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param credentials body APIRestReqCredentials true "New user credentials"
// @Success 200 {object} APIRestRespUser "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 409 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/auth/register [post]
func (h APIRestAuthHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	var params APIRestReqCredentials
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if err := h.validate.Struct(&params); err != nil {
		msg := "Invalid registration parameters"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	hashed, err := auth.HashPassword(params.Password)
	if err != nil {
		msg := "Unable to process password"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusInternalServerError, msg, err.Error())
		return
	}

	user, err := h.users.CreateUser(r.Context(), params.Name, hashed)
	if err != nil {
		msg := "Unable to create user"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespUser{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, User: user.Summary(),
	}
}

// RegisterUserHandler Wrapper around RegisterUser
func (h APIRestAuthHandler) RegisterUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.RegisterUser(w, r)
	}
}

// -----------------------------------------------------------------------

// Login godoc
// @Summary Login
// @Description Exchange a name and password for a bearer token
// @tags Auth
// @Accept json
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param credentials body APIRestReqCredentials true "User credentials"
// @Success 200 {object} APIRestRespLogin "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/auth/login [post]
func (h APIRestAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	var params APIRestReqCredentials
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	// A bad name and a bad password are indistinguishable to the caller
	msg := "Invalid credentials"
	user, err := h.users.GetUserByName(r.Context(), params.Name)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Debug(msg)
		respCode = http.StatusUnauthorized
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusUnauthorized, msg, msg)
		return
	}
	if !auth.VerifyPassword(params.Password, user.PasswordHash) {
		log.WithFields(localLogTags).Debug(msg)
		respCode = http.StatusUnauthorized
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusUnauthorized, msg, msg)
		return
	}

	token, err := h.tokens.Mint(user.ID, user.Name)
	if err != nil {
		failMsg := "Unable to mint token"
		log.WithError(err).WithFields(localLogTags).Error(failMsg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(
			r.Context(), http.StatusInternalServerError, failMsg, err.Error(),
		)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespLogin{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Token: token, User: user.Summary(),
	}
}

// LoginHandler Wrapper around Login
func (h APIRestAuthHandler) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Login(w, r)
	}
}

// -----------------------------------------------------------------------

// GetProfile godoc
// @Summary Fetch own profile
// @Description Fetch the profile of the authenticated user
// @tags Auth
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespUser "success"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/auth/profile [get]
func (h APIRestAuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		msg := "No authenticated identity"
		respCode = http.StatusUnauthorized
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusUnauthorized, msg, msg)
		return
	}

	user, err := h.users.GetUser(r.Context(), identity.ID)
	if err != nil {
		msg := "Unable to fetch profile"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespUser{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, User: user.Summary(),
	}
}

// GetProfileHandler Wrapper around GetProfile
func (h APIRestAuthHandler) GetProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.GetProfile(w, r)
	}
}

// -----------------------------------------------------------------------

// APIRestReqUpdateProfile request body for a profile update
type APIRestReqUpdateProfile struct {
	// Name is the new display name
	Name string `json:"name" validate:"required,min=1,max=64"`
}

// UpdateProfile godoc
// @Summary Update own profile
// @Description Change the display name of the authenticated user
// @tags Auth
// @Accept json
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param update body APIRestReqUpdateProfile true "Profile changes"
// @Success 200 {object} APIRestRespUser "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 409 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/auth/profile [put]
func (h APIRestAuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		msg := "No authenticated identity"
		respCode = http.StatusUnauthorized
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusUnauthorized, msg, msg)
		return
	}

	var params APIRestReqUpdateProfile
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if err := h.validate.Struct(&params); err != nil {
		msg := "Invalid profile parameters"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	user, err := h.users.UpdateUserName(r.Context(), identity.ID, params.Name)
	if err != nil {
		msg := "Unable to update profile"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespUser{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, User: user.Summary(),
	}
}

// UpdateProfileHandler Wrapper around UpdateProfile
func (h APIRestAuthHandler) UpdateProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.UpdateProfile(w, r)
	}
}

// -----------------------------------------------------------------------

// SearchUsers godoc
// @Summary Search users
// @Description Find users whose name contains the query string
// @tags Auth
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param q query string true "Name substring to search for"
// @Param limit query int false "Max results to return"
// @Success 200 {object} APIRestRespUserList "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/auth/users/search [get]
func (h APIRestAuthHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
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
	limit := defaultSearchLimit
	if fromQuery := r.URL.Query().Get("limit"); fromQuery != "" {
		parsed, err := strconv.Atoi(fromQuery)
		if err != nil || parsed < 1 {
			msg := "Invalid result limit"
			respCode = http.StatusBadRequest
			respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
			return
		}
		limit = parsed
	}

	users, err := h.users.SearchUsers(r.Context(), query, limit)
	if err != nil {
		msg := "User search failed"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = mapErrorToStatus(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	summaries := make([]storage.UserSummary, 0, len(users))
	for _, user := range users {
		summary := user.Summary()
		// The mirror only adds freshness. An expired or missing entry, or
		// an unreachable cache, leaves the stored flag in place.
		if h.presence != nil {
			if online, err := h.presence.IsOnline(r.Context(), user.ID); err == nil && online {
				summary.Online = true
			}
		}
		summaries = append(summaries, summary)
	}
	respCode = http.StatusOK
	respBody = APIRestRespUserList{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		}, Users: summaries,
	}
}

// SearchUsersHandler Wrapper around SearchUsers
func (h APIRestAuthHandler) SearchUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.SearchUsers(w, r)
	}
}
