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
	"sync"
	"time"

	"github.com/alwitt/chatmq/auth"
	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/fanout"
	"github.com/alwitt/chatmq/presence"
	"github.com/alwitt/chatmq/storage"
	"github.com/apex/log"
)

// SessionRegistry tracks the live session of each online user. A user holds
// at most one live session; registering a second connection displaces the
// first.
type SessionRegistry interface {
	// Register record a user's live session, displacing any prior session.
	// Marks the user online and fans the presence change out.
	Register(ctxt context.Context, session Session) error
	// Unregister drop a user's session if the registry still points at it.
	// A stale or unknown session is a no-op. Marks the user offline and fans
	// the presence change out.
	Unregister(ctxt context.Context, session Session) error
	// Lookup fetch the live session of a user
	Lookup(userID string) (Session, bool)
	// ListOnline fetch the identities with a live session
	ListOnline() []auth.Identity
}

// sessionRegistryImpl implements SessionRegistry
type sessionRegistryImpl struct {
	common.Component
	sessions  map[string]Session
	lock      sync.RWMutex
	users     storage.UserStore
	publisher fanout.EventPublisher
	cache     presence.Cache
}

// GetSessionRegistry define a new SessionRegistry. The presence cache is
// optional; pass nil to skip the Redis mirror.
func GetSessionRegistry(
	users storage.UserStore, publisher fanout.EventPublisher, cache presence.Cache,
) (SessionRegistry, error) {
	logTags := log.Fields{
		"module":    "realtime",
		"component": "session-registry",
	}
	return &sessionRegistryImpl{
		Component: common.Component{LogTags: logTags},
		sessions:  map[string]Session{},
		users:     users,
		publisher: publisher,
		cache:     cache,
	}, nil
}

// Register record a user's live session, displacing any prior session
func (r *sessionRegistryImpl) Register(ctxt context.Context, session Session) error {
	user := session.User()

	r.lock.Lock()
	displaced := r.sessions[user.ID]
	r.sessions[user.ID] = session
	r.lock.Unlock()

	if displaced != nil && displaced.ID() != session.ID() {
		log.WithFields(r.LogTags).Infof(
			"Displacing prior session %s of %s", displaced.ID(), user.ID,
		)
		displaced.SendEvent(ErrorEvent("session displaced by newer connection"))
		displaced.Close()
	}

	r.applyPresence(ctxt, user, true)
	log.WithFields(r.LogTags).Infof("Registered session %s of %s", session.ID(), user.ID)
	return nil
}

// Unregister drop a user's session if the registry still points at it
func (r *sessionRegistryImpl) Unregister(ctxt context.Context, session Session) error {
	user := session.User()

	r.lock.Lock()
	current, exists := r.sessions[user.ID]
	if !exists || current.ID() != session.ID() {
		// A displaced session unregistering must not evict its replacement
		r.lock.Unlock()
		return nil
	}
	delete(r.sessions, user.ID)
	r.lock.Unlock()

	r.applyPresence(ctxt, user, false)
	log.WithFields(r.LogTags).Infof("Unregistered session %s of %s", session.ID(), user.ID)
	return nil
}

// Lookup fetch the live session of a user
func (r *sessionRegistryImpl) Lookup(userID string) (Session, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	session, exists := r.sessions[userID]
	return session, exists
}

// ListOnline fetch the identities with a live session
func (r *sessionRegistryImpl) ListOnline() []auth.Identity {
	r.lock.RLock()
	defer r.lock.RUnlock()
	online := make([]auth.Identity, 0, len(r.sessions))
	for _, session := range r.sessions {
		online = append(online, session.User())
	}
	return online
}

// applyPresence record a presence change and fan it out. Failures on any
// leg are logged and swallowed; presence is best-effort beyond the registry
// table itself.
func (r *sessionRegistryImpl) applyPresence(
	ctxt context.Context, user auth.Identity, online bool,
) {
	if err := r.users.SetUserPresence(ctxt, user.ID, online); err != nil {
		log.WithError(err).WithFields(r.LogTags).Errorf(
			"Unable to persist presence of %s", user.ID,
		)
	}
	if r.cache != nil {
		var err error
		if online {
			err = r.cache.MarkOnline(ctxt, user.ID)
		} else {
			err = r.cache.MarkOffline(ctxt, user.ID)
		}
		if err != nil {
			log.WithError(err).WithFields(r.LogTags).Errorf(
				"Unable to mirror presence of %s", user.ID,
			)
		}
	}
	if err := r.publisher.PublishPresence(ctxt, fanout.PresenceUpdate{
		UserID: user.ID,
		Name:   user.Name,
		Online: online,
		At:     time.Now().UTC(),
	}); err != nil {
		log.WithError(err).WithFields(r.LogTags).Errorf(
			"Unable to publish presence of %s", user.ID,
		)
	}

	var event Event
	if online {
		event = UserOnlineEvent(user.ID, user.Name)
	} else {
		event = UserOfflineEvent(user.ID, user.Name)
	}
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, session := range r.sessions {
		if session.User().ID == user.ID {
			continue
		}
		session.SendEvent(event)
	}
}
