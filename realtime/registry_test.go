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
	"testing"

	"github.com/alwitt/chatmq/storage"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestSessionRegistryLifecycle(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	db, err := storage.OpenDatabase(":memory:")
	assert.Nil(err)
	users, err := storage.GetUserStore(db)
	assert.Nil(err)

	utCtxt := context.Background()

	alice, err := users.CreateUser(utCtxt, "registry-ut-alice", "hash")
	assert.Nil(err)
	bob, err := users.CreateUser(utCtxt, "registry-ut-bob", "hash")
	assert.Nil(err)

	publisher := newFakePublisher()
	uut, err := GetSessionRegistry(users, publisher, nil)
	assert.Nil(err)

	// Case 0: register marks the user online and publishes presence
	aliceSession := newFakeSession(alice.ID, alice.Name)
	assert.Nil(uut.Register(utCtxt, aliceSession))
	readBack, err := users.GetUser(utCtxt, alice.ID)
	assert.Nil(err)
	assert.True(readBack.Online)
	updates := publisher.presenceUpdates()
	assert.Len(updates, 1)
	assert.Equal(alice.ID, updates[0].UserID)
	assert.True(updates[0].Online)

	found, exists := uut.Lookup(alice.ID)
	assert.True(exists)
	assert.Equal(aliceSession.ID(), found.ID())

	// Case 1: a second user registering notifies the first, not itself
	bobSession := newFakeSession(bob.ID, bob.Name)
	assert.Nil(uut.Register(utCtxt, bobSession))
	assert.Contains(aliceSession.receivedTypes(), EventUserOnline)
	assert.NotContains(bobSession.receivedTypes(), EventUserOnline)
	assert.Len(uut.ListOnline(), 2)

	// Case 2: unregister marks offline and drops the entry
	assert.Nil(uut.Unregister(utCtxt, aliceSession))
	_, exists = uut.Lookup(alice.ID)
	assert.False(exists)
	readBack, err = users.GetUser(utCtxt, alice.ID)
	assert.Nil(err)
	assert.False(readBack.Online)
	assert.Contains(bobSession.receivedTypes(), EventUserOffline)

	// Case 3: unregister of an absent identity is a no-op
	priorUpdates := len(publisher.presenceUpdates())
	assert.Nil(uut.Unregister(utCtxt, aliceSession))
	assert.Len(publisher.presenceUpdates(), priorUpdates)
}

func TestSessionRegistryDisplacement(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	db, err := storage.OpenDatabase(":memory:")
	assert.Nil(err)
	users, err := storage.GetUserStore(db)
	assert.Nil(err)

	utCtxt := context.Background()

	alice, err := users.CreateUser(utCtxt, "displace-ut-alice", "hash")
	assert.Nil(err)

	publisher := newFakePublisher()
	uut, err := GetSessionRegistry(users, publisher, nil)
	assert.Nil(err)

	first := newFakeSession(alice.ID, alice.Name)
	assert.Nil(uut.Register(utCtxt, first))

	// A second login displaces and closes the first session
	second := newFakeSession(alice.ID, alice.Name)
	assert.Nil(uut.Register(utCtxt, second))
	assert.True(first.isClosed())
	assert.Contains(first.receivedTypes(), EventError)

	found, exists := uut.Lookup(alice.ID)
	assert.True(exists)
	assert.Equal(second.ID(), found.ID())

	// The displaced session unregistering must not evict the replacement
	assert.Nil(uut.Unregister(utCtxt, first))
	found, exists = uut.Lookup(alice.ID)
	assert.True(exists)
	assert.Equal(second.ID(), found.ID())

	readBack, err := users.GetUser(utCtxt, alice.ID)
	assert.Nil(err)
	assert.True(readBack.Online)
}
