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

package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/storage"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGateAuthenticate(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	db, err := storage.OpenDatabase(":memory:")
	assert.Nil(err)
	users, err := storage.GetUserStore(db)
	assert.Nil(err)

	tokens, err := GetJWTManager(common.AuthConfig{
		SigningSecret: "unit-test-signing-secret",
		TokenLifetime: 15,
		Issuer:        "chatmq-ut",
	})
	assert.Nil(err)

	uut, err := GetGate(tokens, users)
	assert.Nil(err)

	utCtxt := context.Background()

	user, err := users.CreateUser(utCtxt, "gate-ut-user", "hash")
	assert.Nil(err)
	token, err := tokens.Mint(user.ID, user.Name)
	assert.Nil(err)

	// Case 0: valid token resolves the stored identity
	identity, err := uut.Authenticate(utCtxt, token)
	assert.Nil(err)
	assert.Equal(user.ID, identity.ID)
	assert.Equal(user.Name, identity.Name)

	// Case 1: empty token
	_, err = uut.Authenticate(utCtxt, "")
	assert.ErrorIs(err, ErrMissingCredential)

	// Case 2: token referencing a deleted identity
	orphaned, err := tokens.Mint(uuid.New().String(), "ghost")
	assert.Nil(err)
	_, err = uut.Authenticate(utCtxt, orphaned)
	assert.ErrorIs(err, ErrUnknownIdentity)
}

func TestGateAuthenticateRequest(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	db, err := storage.OpenDatabase(":memory:")
	assert.Nil(err)
	users, err := storage.GetUserStore(db)
	assert.Nil(err)

	tokens, err := GetJWTManager(common.AuthConfig{
		SigningSecret: "unit-test-signing-secret",
		TokenLifetime: 15,
		Issuer:        "chatmq-ut",
	})
	assert.Nil(err)

	uut, err := GetGate(tokens, users)
	assert.Nil(err)

	user, err := users.CreateUser(context.Background(), "gate-ut-request", "hash")
	assert.Nil(err)
	token, err := tokens.Mint(user.ID, user.Name)
	assert.Nil(err)

	// Case 0: Authorization header
	req := httptest.NewRequest(http.MethodGet, "/v1/room", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	identity, err := uut.AuthenticateRequest(req)
	assert.Nil(err)
	assert.Equal(user.ID, identity.ID)

	// Case 1: token query parameter, as used on websocket handshakes
	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/ws?token=%s", token), nil)
	identity, err = uut.AuthenticateRequest(req)
	assert.Nil(err)
	assert.Equal(user.ID, identity.ID)

	// Case 2: malformed Authorization header
	req = httptest.NewRequest(http.MethodGet, "/v1/room", nil)
	req.Header.Set("Authorization", token)
	_, err = uut.AuthenticateRequest(req)
	assert.ErrorIs(err, ErrInvalidCredential)

	// Case 3: no credential at all
	req = httptest.NewRequest(http.MethodGet, "/v1/room", nil)
	_, err = uut.AuthenticateRequest(req)
	assert.ErrorIs(err, ErrMissingCredential)
}

func TestGateMiddleware(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	db, err := storage.OpenDatabase(":memory:")
	assert.Nil(err)
	users, err := storage.GetUserStore(db)
	assert.Nil(err)

	tokens, err := GetJWTManager(common.AuthConfig{
		SigningSecret: "unit-test-signing-secret",
		TokenLifetime: 15,
		Issuer:        "chatmq-ut",
	})
	assert.Nil(err)

	uut, err := GetGate(tokens, users)
	assert.Nil(err)

	user, err := users.CreateUser(context.Background(), "gate-ut-middleware", "hash")
	assert.Nil(err)
	token, err := tokens.Mint(user.ID, user.Name)
	assert.Nil(err)

	var seen Identity
	var seenOK bool
	handler := uut.Middleware(func(w http.ResponseWriter, r *http.Request) {
		seen, seenOK = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	// Case 0: authenticated request reaches the handler with identity attached
	req := httptest.NewRequest(http.MethodGet, "/v1/room", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	respRecorder := httptest.NewRecorder()
	handler(respRecorder, req)
	assert.Equal(http.StatusOK, respRecorder.Code)
	assert.True(seenOK)
	assert.Equal(user.ID, seen.ID)

	// Case 1: unauthenticated request is rejected before the handler
	seenOK = false
	req = httptest.NewRequest(http.MethodGet, "/v1/room", nil)
	respRecorder = httptest.NewRecorder()
	handler(respRecorder, req)
	assert.Equal(http.StatusUnauthorized, respRecorder.Code)
	assert.False(seenOK)
}
