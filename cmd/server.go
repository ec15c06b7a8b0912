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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alwitt/chatmq/apis"
	"github.com/alwitt/chatmq/auth"
	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/core"
	"github.com/alwitt/chatmq/fanout"
	"github.com/alwitt/chatmq/presence"
	"github.com/alwitt/chatmq/realtime"
	"github.com/alwitt/chatmq/storage"
	"github.com/apex/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RunChatServer run the chat API server
func RunChatServer(
	runtimeContext context.Context,
	config *common.SystemConfig,
	instance string,
	natsClient *core.NatsClient,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "chat-server",
		"instance":  instance,
	}

	chatConfig := config.Chat

	// -------------------------------------------------------------------
	// Storage and auth

	db, err := storage.OpenDatabase(config.Database.DSN)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf(
			"Unable to open record store %s", config.Database.DSN,
		)
		return err
	}
	users, err := storage.GetUserStore(db)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define user store")
		return err
	}
	rooms, err := storage.GetRoomStore(db)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define room store")
		return err
	}
	messages, err := storage.GetMessageStore(db)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define message store")
		return err
	}

	tokens, err := auth.GetJWTManager(config.Auth)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define token manager")
		return err
	}
	gate, err := auth.GetGate(tokens, users)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define auth gate")
		return err
	}

	// -------------------------------------------------------------------
	// Fan-out backbone

	provisioner, err := fanout.GetStreamProvisioner(natsClient, config.Fanout)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define stream provisioner")
		return err
	}
	if err := provisioner.EnsureStreams(); err != nil {
		log.WithError(err).WithFields(logTags).Error("Stream provisioning failed")
		return err
	}
	publisher, err := fanout.GetEventPublisher(natsClient, config.Fanout, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define event publisher")
		return err
	}

	var presenceCache presence.Cache
	if config.Presence != nil {
		presenceCache, err = presence.GetCache(*config.Presence)
		if err != nil {
			log.WithError(err).WithFields(logTags).Errorf(
				"Unable to reach presence cache %s", config.Presence.Server,
			)
			return err
		}
		defer func() {
			if err := presenceCache.Close(); err != nil {
				log.WithError(err).WithFields(logTags).Error("Presence cache close failed")
			}
		}()
	}

	// -------------------------------------------------------------------
	// Real-time layer

	registry, err := realtime.GetSessionRegistry(users, publisher, presenceCache)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define session registry")
		return err
	}
	groups, err := realtime.GetBroadcastGroups()
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define broadcast groups")
		return err
	}
	service, err := realtime.GetMessageService(
		messages, rooms, registry, groups, publisher, config.Database,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define message service")
		return err
	}
	hub, err := realtime.GetHub(registry, groups, service, rooms, config.Database)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define hub")
		return err
	}

	// -------------------------------------------------------------------
	// HTTP handlers

	httpConfig := &chatConfig.HTTPSetting
	authHandler, err := apis.GetAPIRestAuthHandler(users, tokens, presenceCache, httpConfig)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define auth handler")
		return err
	}
	roomHandler, err := apis.GetAPIRestRoomHandler(rooms, publisher, httpConfig)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define room handler")
		return err
	}
	messageHandler, err := apis.GetAPIRestMessageHandler(service, messages, rooms, httpConfig)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define message handler")
		return err
	}
	realtimeHandler, err := apis.GetAPIRestRealtimeHandler(
		runtimeContext, gate, hub, chatConfig.Websocket, httpConfig, wg,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define realtime handler")
		return err
	}
	livenessHandler, err := apis.GetAPIRestLivenessHandler(natsClient, httpConfig)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define liveness handler")
		return err
	}

	// -------------------------------------------------------------------
	// Route assembly

	router := mux.NewRouter()
	mainRouter := apis.RegisterPathPrefix(router, chatConfig.Endpoints.PathPrefix, nil)

	// Identity routes
	authRouter := apis.RegisterPathPrefix(mainRouter, "/v1/auth", nil)
	_ = apis.RegisterPathPrefix(authRouter, "/register", map[string]http.HandlerFunc{
		"post": authHandler.RegisterUserHandler(),
	})
	_ = apis.RegisterPathPrefix(authRouter, "/login", map[string]http.HandlerFunc{
		"post": authHandler.LoginHandler(),
	})
	_ = apis.RegisterPathPrefix(authRouter, "/profile", map[string]http.HandlerFunc{
		"get": gate.Middleware(authHandler.GetProfileHandler()),
		"put": gate.Middleware(authHandler.UpdateProfileHandler()),
	})
	_ = apis.RegisterPathPrefix(authRouter, "/users/search", map[string]http.HandlerFunc{
		"get": gate.Middleware(authHandler.SearchUsersHandler()),
	})

	// Room routes. The search route must be registered ahead of the
	// per-room routes so "search" is not read as a room ID.
	roomsRouter := apis.RegisterPathPrefix(mainRouter, "/v1/rooms", map[string]http.HandlerFunc{
		"post": gate.Middleware(roomHandler.CreateRoomHandler()),
		"get":  gate.Middleware(roomHandler.ListRoomsHandler()),
	})
	_ = apis.RegisterPathPrefix(roomsRouter, "/search", map[string]http.HandlerFunc{
		"get": gate.Middleware(roomHandler.SearchRoomsHandler()),
	})
	perRoomRouter := apis.RegisterPathPrefix(roomsRouter, "/{roomID}", map[string]http.HandlerFunc{
		"get":    gate.Middleware(roomHandler.GetRoomHandler()),
		"put":    gate.Middleware(roomHandler.UpdateRoomHandler()),
		"delete": gate.Middleware(roomHandler.DeleteRoomHandler()),
	})
	_ = apis.RegisterPathPrefix(perRoomRouter, "/join", map[string]http.HandlerFunc{
		"post": gate.Middleware(roomHandler.JoinRoomHandler()),
	})
	_ = apis.RegisterPathPrefix(perRoomRouter, "/leave", map[string]http.HandlerFunc{
		"post": gate.Middleware(roomHandler.LeaveRoomHandler()),
	})
	_ = apis.RegisterPathPrefix(perRoomRouter, "/members", map[string]http.HandlerFunc{
		"get": gate.Middleware(roomHandler.ListMembersHandler()),
	})

	// Message routes. The room history route must be registered ahead of
	// the per-message routes so "room" is not read as a message ID.
	messagesRouter := apis.RegisterPathPrefix(
		mainRouter, "/v1/messages", map[string]http.HandlerFunc{
			"post": gate.Middleware(messageHandler.SendMessageHandler()),
		},
	)
	_ = apis.RegisterPathPrefix(messagesRouter, "/room/{roomID}", map[string]http.HandlerFunc{
		"get": gate.Middleware(messageHandler.ListRoomMessagesHandler()),
	})
	_ = apis.RegisterPathPrefix(messagesRouter, "/{messageID}", map[string]http.HandlerFunc{
		"put":    gate.Middleware(messageHandler.EditMessageHandler()),
		"delete": gate.Middleware(messageHandler.DeleteMessageHandler()),
	})

	// Real-time handshake. The handler authenticates before upgrading.
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/ws", map[string]http.HandlerFunc{
		"get": realtimeHandler.ConnectHandler(),
	})

	// Health check
	_ = apis.RegisterPathPrefix(mainRouter, "/alive", map[string]http.HandlerFunc{
		"get": livenessHandler.AliveHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/ready", map[string]http.HandlerFunc{
		"get": livenessHandler.ReadyHandler(),
	})

	// Add logging
	router.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(livenessHandler, next)
	})

	// -------------------------------------------------------------------
	// Start the HTTP server

	serverListen := fmt.Sprintf(
		"%s:%d", httpConfig.Server.ListenOn, httpConfig.Server.Port,
	)
	httpSrv := &http.Server{
		Addr:         serverListen,
		WriteTimeout: time.Second * time.Duration(httpConfig.Server.WriteTimeout),
		ReadTimeout:  time.Second * time.Duration(httpConfig.Server.ReadTimeout),
		IdleTimeout:  time.Second * time.Duration(httpConfig.Server.IdleTimeout),
		Handler:      h2c.NewHandler(router, &http2.Server{}),
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP Server Failure")
		}
	}()

	log.WithFields(logTags).Infof("Started chat API server on http://%s", serverListen)

	// ============================================================================

	<-runtimeContext.Done()

	// Stop the HTTP server
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failure during HTTP shutdown")
		}
	}

	return nil
}
