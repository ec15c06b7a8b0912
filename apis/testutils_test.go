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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alwitt/chatmq/auth"
	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/fanout"
	"github.com/alwitt/chatmq/realtime"
	"github.com/alwitt/chatmq/storage"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

// fakeRestPublisher no-op EventPublisher for REST handler tests
type fakeRestPublisher struct {
	lock       sync.Mutex
	roomEvents int
	tasks      map[string][]fanout.Task
}

func (p *fakeRestPublisher) PublishRoomEvent(
	_ context.Context, _ string, _ interface{},
) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.roomEvents++
	return nil
}

func (p *fakeRestPublisher) PublishPresence(
	_ context.Context, _ fanout.PresenceUpdate,
) error {
	return nil
}

func (p *fakeRestPublisher) SubmitTask(
	_ context.Context, queue string, task fanout.Task,
) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.tasks[queue] = append(p.tasks[queue], task)
	return nil
}

func (p *fakeRestPublisher) queuedTasks(queue string) []fanout.Task {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.tasks[queue]
}

// fakePresenceCache in-memory stand-in for the Redis presence mirror
type fakePresenceCache struct {
	lock   sync.Mutex
	online map[string]bool
}

func newFakePresenceCache() *fakePresenceCache {
	return &fakePresenceCache{online: map[string]bool{}}
}

func (c *fakePresenceCache) MarkOnline(_ context.Context, userID string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.online[userID] = true
	return nil
}

func (c *fakePresenceCache) MarkOffline(_ context.Context, userID string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.online, userID)
	return nil
}

func (c *fakePresenceCache) IsOnline(_ context.Context, userID string) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.online[userID], nil
}

func (c *fakePresenceCache) Close() error {
	return nil
}

// apiTestEnv a complete in-memory backend for REST handler tests
type apiTestEnv struct {
	users     storage.UserStore
	rooms     storage.RoomStore
	messages  storage.MessageStore
	tokens    auth.JWTManager
	registry  realtime.SessionRegistry
	groups    realtime.BroadcastGroups
	service   realtime.MessageService
	publisher *fakeRestPublisher
	http      common.HTTPConfig
}

func getAPITestEnv(t *testing.T) apiTestEnv {
	assert := assert.New(t)

	db, err := storage.OpenDatabase(":memory:")
	assert.Nil(err)
	users, err := storage.GetUserStore(db)
	assert.Nil(err)
	rooms, err := storage.GetRoomStore(db)
	assert.Nil(err)
	messages, err := storage.GetMessageStore(db)
	assert.Nil(err)

	tokens, err := auth.GetJWTManager(common.AuthConfig{
		SigningSecret: "unit-test-signing-secret",
		TokenLifetime: 15,
		Issuer:        "chatmq-ut",
	})
	assert.Nil(err)

	publisher := &fakeRestPublisher{tasks: map[string][]fanout.Task{}}
	registry, err := realtime.GetSessionRegistry(users, publisher, nil)
	assert.Nil(err)
	groups, err := realtime.GetBroadcastGroups()
	assert.Nil(err)
	dbConfig := common.DatabaseConfig{DSN: ":memory:", OpTimeout: 10}
	service, err := realtime.GetMessageService(
		messages, rooms, registry, groups, publisher, dbConfig,
	)
	assert.Nil(err)

	return apiTestEnv{
		users:     users,
		rooms:     rooms,
		messages:  messages,
		tokens:    tokens,
		registry:  registry,
		groups:    groups,
		service:   service,
		publisher: publisher,
		http: common.HTTPConfig{
			Logging: common.HTTPRequestLogging{
				RequestIDHeader: "Chatmq-Request-ID",
			},
		},
	}
}

// registerTestUser persist one user directly through the store
func (env apiTestEnv) registerTestUser(t *testing.T, name string) storage.User {
	assert := assert.New(t)
	hashed, err := auth.HashPassword("unit-test-password")
	assert.Nil(err)
	user, err := env.users.CreateUser(context.Background(), name, hashed)
	assert.Nil(err)
	return user
}

// jsonRequest build a request with an optional JSON body and identity
func jsonRequest(
	t *testing.T, method, target string, body interface{}, as *storage.User,
) *http.Request {
	assert := assert.New(t)
	var reader *bytes.Reader
	if body != nil {
		serialized, err := json.Marshal(body)
		assert.Nil(err)
		reader = bytes.NewReader(serialized)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, target, reader)
	if as != nil {
		request = request.WithContext(auth.ContextWithIdentity(
			request.Context(), auth.Identity{ID: as.ID, Name: as.Name},
		))
	}
	return request
}

// withPathVars attach mux path variables to a request
func withPathVars(request *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(request, vars)
}

// decodeResponse unmarshal the recorded response body
func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder, into interface{}) {
	assert := assert.New(t)
	assert.Nil(json.Unmarshal(recorder.Body.Bytes(), into))
}
