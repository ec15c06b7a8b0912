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
	"net/http"
	"sync"

	"github.com/alwitt/chatmq/auth"
	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/realtime"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/gorilla/websocket"
)

// APIRestRealtimeHandler handler for the websocket handshake endpoint.
// Authentication runs before the protocol upgrade; an unauthenticated
// request is refused with a normal REST error response.
type APIRestRealtimeHandler struct {
	goutils.RestAPIHandler
	gate     auth.Gate
	hub      realtime.Hub
	wsConfig common.WebsocketConfig
	upgrader websocket.Upgrader
	wg       *sync.WaitGroup
	ctxt     context.Context
}

// GetAPIRestRealtimeHandler define APIRestRealtimeHandler
//
// The runtime context bounds the lifetime of every session accepted by this
// handler; canceling it shuts the read and write pumps down.
func GetAPIRestRealtimeHandler(
	ctxt context.Context,
	gate auth.Gate,
	hub realtime.Hub,
	wsConfig common.WebsocketConfig,
	httpConfig *common.HTTPConfig,
	wg *sync.WaitGroup,
) (APIRestRealtimeHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "realtime",
	}
	return APIRestRealtimeHandler{
		RestAPIHandler: getRestAPIHandler(logTags, httpConfig),
		gate:           gate,
		hub:            hub,
		wsConfig:       wsConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		wg:   wg,
		ctxt: ctxt,
	}, nil
}

// Connect godoc
// @Summary Open a real-time connection
// @Description Upgrade to a websocket session. Credentials are taken from the
// Authorization header or the token query parameter and checked before the
// upgrade.
// @tags Realtime
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Param token query string false "Bearer token, for clients unable to set headers"
// @Success 101 {string} string "protocol switch"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/ws [get]
func (h APIRestRealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())

	identity, err := h.gate.AuthenticateRequest(r)
	if err != nil {
		msg := "Invalid credentials"
		log.WithError(err).WithFields(localLogTags).Info("Refused websocket handshake")
		respCode := mapErrorToStatus(err)
		respBody := h.GetStdRESTErrorMsg(r.Context(), respCode, msg, msg)
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
		return
	}

	// From here on the connection is no longer HTTP; errors surface as
	// websocket close frames instead of REST responses
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		log.WithError(err).WithFields(localLogTags).Error("Websocket upgrade failed")
		return
	}

	session, err := realtime.GetWebsocketSession(h.ctxt, conn, identity, h.wsConfig, h.hub)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Unable to define session")
		_ = conn.Close()
		return
	}
	if err := h.hub.Connect(h.ctxt, session); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Unable to register session of user %s", identity.ID,
		)
		session.Close()
		return
	}
	session.Start(h.wg)
}

// ConnectHandler Wrapper around Connect
func (h APIRestRealtimeHandler) ConnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Connect(w, r)
	}
}
