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
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/storage"
	"github.com/apex/log"
)

// Identity one authenticated chat user
type Identity struct {
	// ID is the stable user ID
	ID string `json:"id"`
	// Name is the user display name
	Name string `json:"name"`
}

// identityContextKey context key under which the resolved identity is stored
type identityContextKey struct{}

// IdentityFromContext fetch the resolved identity attached to a request context
func IdentityFromContext(ctxt context.Context) (Identity, bool) {
	identity, ok := ctxt.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// ContextWithIdentity attach a resolved identity to a context
func ContextWithIdentity(ctxt context.Context, identity Identity) context.Context {
	return context.WithValue(ctxt, identityContextKey{}, identity)
}

// Gate validates bearer credentials ahead of protected HTTP routes and
// real-time handshakes
type Gate interface {
	// Authenticate resolve a raw bearer token to a stored identity
	Authenticate(ctxt context.Context, token string) (Identity, error)
	// AuthenticateRequest resolve the credential presented on an HTTP request.
	// The token is read from the "Authorization: Bearer" header, or from the
	// "token" query parameter for websocket handshakes.
	AuthenticateRequest(r *http.Request) (Identity, error)
	// Middleware wrap a protected route handler; unauthenticated requests are
	// rejected before the handler runs
	Middleware(next http.HandlerFunc) http.HandlerFunc
}

// gateImpl implements Gate
type gateImpl struct {
	common.Component
	tokens JWTManager
	users  storage.UserStore
}

// GetGate define a new authentication Gate
func GetGate(tokens JWTManager, users storage.UserStore) (Gate, error) {
	logTags := log.Fields{
		"module":    "auth",
		"component": "gate",
	}
	return &gateImpl{
		Component: common.Component{LogTags: logTags},
		tokens:    tokens,
		users:     users,
	}, nil
}

// Authenticate resolve a raw bearer token to a stored identity
func (g *gateImpl) Authenticate(ctxt context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingCredential
	}
	claims, err := g.tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	// The token must still reference a live identity
	user, err := g.users.GetUser(ctxt, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Identity{}, ErrUnknownIdentity
		}
		log.WithError(err).WithFields(g.LogTags).Errorf(
			"Identity lookup for %s failed", claims.UserID,
		)
		return Identity{}, err
	}
	return Identity{ID: user.ID, Name: user.Name}, nil
}

// AuthenticateRequest resolve the credential presented on an HTTP request
func (g *gateImpl) AuthenticateRequest(r *http.Request) (Identity, error) {
	token := ""
	if header := r.Header.Get("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return Identity{}, ErrInvalidCredential
		}
		token = strings.TrimPrefix(header, "Bearer ")
	} else if fromQuery := r.URL.Query().Get("token"); fromQuery != "" {
		token = fromQuery
	}
	return g.Authenticate(r.Context(), token)
}

// Middleware wrap a protected route handler
func (g *gateImpl) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.AuthenticateRequest(r)
		if err != nil {
			localLogTags, _ := common.UpdateLogTags(r.Context(), g.LogTags)
			log.WithError(err).WithFields(localLogTags).Debug("Rejected request")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error": map[string]interface{}{
					"code":    http.StatusUnauthorized,
					"message": err.Error(),
				},
			})
			return
		}
		next(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	}
}
