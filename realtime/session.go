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
	"sync"
	"time"

	"github.com/alwitt/chatmq/auth"
	"github.com/alwitt/chatmq/common"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeWait max duration of one outbound frame write
const writeWait = time.Second * 10

// Session one live real-time connection of an authenticated user
type Session interface {
	// ID uniquely identifies this connection
	ID() string
	// User fetch the identity bound to this connection
	User() auth.Identity
	// SendEvent queue an event for delivery without blocking. Returns false
	// if the session's send buffer is full.
	SendEvent(event Event) bool
	// Close shut the connection down
	Close()
}

// SessionHandler receives inbound frames and lifecycle callbacks from
// live sessions
type SessionHandler interface {
	// HandleInbound process one client frame
	HandleInbound(ctxt context.Context, session Session, envelope ClientEnvelope)
	// HandleDisconnect process a session teardown
	HandleDisconnect(ctxt context.Context, session Session)
}

// WebsocketSession a Session served over a websocket connection
type WebsocketSession interface {
	Session
	// Start launch the connection read and write pumps
	Start(wg *sync.WaitGroup)
}

// websocketSessionImpl implements WebsocketSession
type websocketSessionImpl struct {
	common.Component
	id        string
	user      auth.Identity
	conn      *websocket.Conn
	handler   SessionHandler
	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
	config    common.WebsocketConfig
	ctxt      context.Context
}

// GetWebsocketSession define a new WebsocketSession around an upgraded
// connection
func GetWebsocketSession(
	ctxt context.Context,
	conn *websocket.Conn,
	user auth.Identity,
	config common.WebsocketConfig,
	handler SessionHandler,
) (WebsocketSession, error) {
	sessionID := uuid.New().String()
	logTags := log.Fields{
		"module":    "realtime",
		"component": "session",
		"session":   sessionID,
		"user":      user.ID,
	}
	return &websocketSessionImpl{
		Component: common.Component{LogTags: logTags},
		id:        sessionID,
		user:      user,
		conn:      conn,
		handler:   handler,
		send:      make(chan Event, config.SendBufferDepth),
		done:      make(chan struct{}),
		config:    config,
		ctxt:      ctxt,
	}, nil
}

// ID uniquely identifies this connection
func (s *websocketSessionImpl) ID() string {
	return s.id
}

// User fetch the identity bound to this connection
func (s *websocketSessionImpl) User() auth.Identity {
	return s.user
}

// SendEvent queue an event for delivery without blocking
func (s *websocketSessionImpl) SendEvent(event Event) bool {
	select {
	case s.send <- event:
		return true
	default:
		log.WithFields(s.LogTags).Warnf(
			"Send buffer full, dropping %s event", event.Type,
		)
		return false
	}
}

// Close shut the connection down
func (s *websocketSessionImpl) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil {
			log.WithError(err).WithFields(s.LogTags).Debug("Connection close failed")
		}
	})
}

// Start launch the connection read and write pumps
func (s *websocketSessionImpl) Start(wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readPump()
	}()
	go func() {
		defer wg.Done()
		s.writePump()
	}()
}

// readPump drain inbound frames and hand them to the session handler
func (s *websocketSessionImpl) readPump() {
	defer func() {
		s.handler.HandleDisconnect(s.ctxt, s)
		s.Close()
	}()
	pongWait := time.Second * time.Duration(s.config.PongWait)
	s.conn.SetReadLimit(s.config.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseGoingAway, websocket.CloseNormalClosure,
			) {
				log.WithError(err).WithFields(s.LogTags).Debug("Read pump terminated")
			}
			return
		}
		var envelope ClientEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			s.SendEvent(ErrorEvent("malformed frame"))
			continue
		}
		s.handler.HandleInbound(s.ctxt, s, envelope)
	}
}

// writePump deliver queued events and keep-alive pings
func (s *websocketSessionImpl) writePump() {
	ticker := time.NewTicker(time.Second * time.Duration(s.config.PingInterval))
	defer func() {
		ticker.Stop()
		s.Close()
	}()
	for {
		select {
		case event := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(event); err != nil {
				log.WithError(err).WithFields(s.LogTags).Debug("Event write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			return
		}
	}
}
