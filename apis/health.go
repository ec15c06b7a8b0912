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
	"net/http"

	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/core"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
)

// APIRestLivenessHandler handler for liveness and readiness probes
type APIRestLivenessHandler struct {
	goutils.RestAPIHandler
	nats *core.NatsClient
}

// GetAPIRestLivenessHandler define APIRestLivenessHandler
func GetAPIRestLivenessHandler(
	natsClient *core.NatsClient, httpConfig *common.HTTPConfig,
) (APIRestLivenessHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "liveness",
	}
	return APIRestLivenessHandler{
		RestAPIHandler: getRestAPIHandler(logTags, httpConfig),
		nats:           natsClient,
	}, nil
}

// Write logging support
func (h APIRestLivenessHandler) Write(p []byte) (n int, err error) {
	log.WithFields(h.LogTags).Infof("%s", p)
	return len(p), nil
}

// Alive godoc
// @Summary Process liveness check
// @Description Will return success to indicate the process is still alive
// @tags Liveness
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /alive [get]
func (h APIRestLivenessHandler) Alive(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	if err := h.WriteRESTResponse(
		w, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), nil,
	); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// AliveHandler Wrapper around Alive
func (h APIRestLivenessHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// -----------------------------------------------------------------------

// Ready godoc
// @Summary Process readiness check
// @Description Will return success if the process can reach its NATS backend
// @tags Liveness
// @Produce json
// @Param Chatmq-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /ready [get]
func (h APIRestLivenessHandler) Ready(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()
	if h.nats.NATs().IsConnected() {
		respCode = http.StatusOK
		respBody = h.GetStdRESTSuccessMsg(r.Context())
	} else {
		msg := "not ready"
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusInternalServerError, msg, msg)
	}
}

// ReadyHandler Wrapper around Ready
func (h APIRestLivenessHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}
