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
	"sync"

	"github.com/alwitt/chatmq/common"
	"github.com/apex/log"
)

// BroadcastGroups tracks which live sessions receive each room's events.
// Group membership is connection scoped; persisted room membership lives in
// the record store.
type BroadcastGroups interface {
	// Subscribe add a session to a room's broadcast group
	Subscribe(roomID string, session Session)
	// Unsubscribe remove a session from a room's broadcast group. Returns
	// whether the session was subscribed.
	Unsubscribe(roomID string, session Session) bool
	// DropSession remove a session from every broadcast group in one pass.
	// Returns the rooms the session was subscribed to.
	DropSession(session Session) []string
	// IsSubscribed check whether a session is in a room's broadcast group
	IsSubscribed(roomID string, session Session) bool
	// Broadcast queue an event on every group member except one. A nil
	// except delivers to all members.
	Broadcast(roomID string, event Event, except Session)
}

// broadcastGroupsImpl implements BroadcastGroups
type broadcastGroupsImpl struct {
	common.Component
	groups map[string]map[string]Session
	lock   sync.RWMutex
}

// GetBroadcastGroups define a new BroadcastGroups
func GetBroadcastGroups() (BroadcastGroups, error) {
	logTags := log.Fields{
		"module":    "realtime",
		"component": "broadcast-groups",
	}
	return &broadcastGroupsImpl{
		Component: common.Component{LogTags: logTags},
		groups:    map[string]map[string]Session{},
	}, nil
}

// Subscribe add a session to a room's broadcast group
func (g *broadcastGroupsImpl) Subscribe(roomID string, session Session) {
	g.lock.Lock()
	defer g.lock.Unlock()
	group, exists := g.groups[roomID]
	if !exists {
		group = map[string]Session{}
		g.groups[roomID] = group
	}
	group[session.ID()] = session
}

// Unsubscribe remove a session from a room's broadcast group
func (g *broadcastGroupsImpl) Unsubscribe(roomID string, session Session) bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	group, exists := g.groups[roomID]
	if !exists {
		return false
	}
	if _, subscribed := group[session.ID()]; !subscribed {
		return false
	}
	delete(group, session.ID())
	if len(group) == 0 {
		delete(g.groups, roomID)
	}
	return true
}

// DropSession remove a session from every broadcast group in one pass
func (g *broadcastGroupsImpl) DropSession(session Session) []string {
	g.lock.Lock()
	defer g.lock.Unlock()
	left := []string{}
	for roomID, group := range g.groups {
		if _, subscribed := group[session.ID()]; !subscribed {
			continue
		}
		delete(group, session.ID())
		if len(group) == 0 {
			delete(g.groups, roomID)
		}
		left = append(left, roomID)
	}
	return left
}

// IsSubscribed check whether a session is in a room's broadcast group
func (g *broadcastGroupsImpl) IsSubscribed(roomID string, session Session) bool {
	g.lock.RLock()
	defer g.lock.RUnlock()
	group, exists := g.groups[roomID]
	if !exists {
		return false
	}
	_, subscribed := group[session.ID()]
	return subscribed
}

// Broadcast queue an event on every group member except one
func (g *broadcastGroupsImpl) Broadcast(roomID string, event Event, except Session) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	group, exists := g.groups[roomID]
	if !exists {
		return
	}
	for sessionID, session := range group {
		if except != nil && sessionID == except.ID() {
			continue
		}
		if !session.SendEvent(event) {
			log.WithFields(g.LogTags).Warnf(
				"Dropped %s event for session %s in room %s",
				event.Type, sessionID, roomID,
			)
		}
	}
}
