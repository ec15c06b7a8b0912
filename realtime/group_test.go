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
	"testing"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBroadcastGroups(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, err := GetBroadcastGroups()
	assert.Nil(err)

	roomID := uuid.New().String()
	sender := newFakeSession(uuid.New().String(), "group-ut-sender")
	receiver := newFakeSession(uuid.New().String(), "group-ut-receiver")
	outsider := newFakeSession(uuid.New().String(), "group-ut-outsider")

	uut.Subscribe(roomID, sender)
	uut.Subscribe(roomID, receiver)
	assert.True(uut.IsSubscribed(roomID, sender))
	assert.False(uut.IsSubscribed(roomID, outsider))

	// Case 0: broadcast skips the excluded session and non-members
	uut.Broadcast(roomID, ErrorEvent("ut"), sender)
	assert.Empty(sender.received())
	assert.Len(receiver.received(), 1)
	assert.Empty(outsider.received())

	// Case 1: nil exclusion delivers to all members
	uut.Broadcast(roomID, ErrorEvent("ut"), nil)
	assert.Len(sender.received(), 1)
	assert.Len(receiver.received(), 2)

	// Case 2: broadcast to an unknown room is a no-op
	uut.Broadcast(uuid.New().String(), ErrorEvent("ut"), nil)

	// Case 3: unsubscribe stops delivery, and repeat unsubscribe reports false
	assert.True(uut.Unsubscribe(roomID, receiver))
	assert.False(uut.Unsubscribe(roomID, receiver))
	uut.Broadcast(roomID, ErrorEvent("ut"), nil)
	assert.Len(receiver.received(), 2)
	assert.Len(sender.received(), 2)
}

func TestBroadcastGroupsDropSession(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, err := GetBroadcastGroups()
	assert.Nil(err)

	roomA := uuid.New().String()
	roomB := uuid.New().String()
	roomC := uuid.New().String()

	target := newFakeSession(uuid.New().String(), "drop-ut-target")
	bystander := newFakeSession(uuid.New().String(), "drop-ut-bystander")

	uut.Subscribe(roomA, target)
	uut.Subscribe(roomB, target)
	uut.Subscribe(roomB, bystander)
	uut.Subscribe(roomC, bystander)

	left := uut.DropSession(target)
	assert.Len(left, 2)
	assert.Contains(left, roomA)
	assert.Contains(left, roomB)

	// The dropped session no longer receives anything; the bystander does
	uut.Broadcast(roomA, ErrorEvent("ut"), nil)
	uut.Broadcast(roomB, ErrorEvent("ut"), nil)
	assert.Empty(target.received())
	assert.Len(bystander.received(), 1)

	// Dropping a session with no subscriptions reports no rooms
	assert.Empty(uut.DropSession(target))
}
