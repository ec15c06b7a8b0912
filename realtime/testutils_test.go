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

	"github.com/alwitt/chatmq/auth"
	"github.com/alwitt/chatmq/fanout"
	"github.com/google/uuid"
)

// fakeSession an in-memory Session recording delivered events
type fakeSession struct {
	id     string
	user   auth.Identity
	lock   sync.Mutex
	events []Event
	closed bool
}

func newFakeSession(userID, name string) *fakeSession {
	return &fakeSession{
		id:   uuid.New().String(),
		user: auth.Identity{ID: userID, Name: name},
	}
}

func (s *fakeSession) ID() string {
	return s.id
}

func (s *fakeSession) User() auth.Identity {
	return s.user
}

func (s *fakeSession) SendEvent(event Event) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.events = append(s.events, event)
	return true
}

func (s *fakeSession) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
}

func (s *fakeSession) received() []Event {
	s.lock.Lock()
	defer s.lock.Unlock()
	result := make([]Event, len(s.events))
	copy(result, s.events)
	return result
}

func (s *fakeSession) receivedTypes() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	types := make([]string, 0, len(s.events))
	for _, event := range s.events {
		types = append(types, event.Type)
	}
	return types
}

func (s *fakeSession) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

// fakePublisher an in-memory EventPublisher recording every publish
type fakePublisher struct {
	lock       sync.Mutex
	roomEvents map[string][]interface{}
	presence   []fanout.PresenceUpdate
	tasks      map[string][]fanout.Task
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		roomEvents: map[string][]interface{}{},
		tasks:      map[string][]fanout.Task{},
	}
}

func (p *fakePublisher) PublishRoomEvent(
	_ context.Context, roomID string, event interface{},
) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.roomEvents[roomID] = append(p.roomEvents[roomID], event)
	return nil
}

func (p *fakePublisher) PublishPresence(
	_ context.Context, update fanout.PresenceUpdate,
) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.presence = append(p.presence, update)
	return nil
}

func (p *fakePublisher) SubmitTask(
	_ context.Context, queue string, task fanout.Task,
) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.tasks[queue] = append(p.tasks[queue], task)
	return nil
}

func (p *fakePublisher) roomEventCount(roomID string) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.roomEvents[roomID])
}

func (p *fakePublisher) presenceUpdates() []fanout.PresenceUpdate {
	p.lock.Lock()
	defer p.lock.Unlock()
	result := make([]fanout.PresenceUpdate, len(p.presence))
	copy(result, p.presence)
	return result
}

func (p *fakePublisher) queuedTasks(queue string) []fanout.Task {
	p.lock.Lock()
	defer p.lock.Unlock()
	result := make([]fanout.Task, len(p.tasks[queue]))
	copy(result, p.tasks[queue])
	return result
}
