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
	"fmt"
	"testing"

	"github.com/alwitt/chatmq/common"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type hubTestEnv struct {
	*serviceTestEnv
	uut Hub
}

func getHubTestEnv(t *testing.T) *hubTestEnv {
	assert := assert.New(t)
	serviceEnv := getServiceTestEnv(t)
	uut, err := GetHub(
		serviceEnv.registry,
		serviceEnv.groups,
		serviceEnv.uut,
		serviceEnv.rooms,
		common.DatabaseConfig{DSN: ":memory:", OpTimeout: 5},
	)
	assert.Nil(err)
	return &hubTestEnv{serviceTestEnv: serviceEnv, uut: uut}
}

func frame(event string, data interface{}) ClientEnvelope {
	serialized, _ := json.Marshal(data)
	return ClientEnvelope{Event: event, Data: serialized}
}

func roomFrame(event, roomID string) ClientEnvelope {
	return frame(event, map[string]string{"room_id": roomID})
}

func TestHubJoinAndLeave(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	env := getHubTestEnv(t)
	utCtxt := context.Background()

	owner, err := env.users.CreateUser(utCtxt, "hub-ut-owner", "hash")
	assert.Nil(err)
	guest, err := env.users.CreateUser(utCtxt, "hub-ut-guest", "hash")
	assert.Nil(err)
	public, err := env.rooms.CreateRoom(utCtxt, "hub-ut-public", false, owner.ID)
	assert.Nil(err)
	hidden, err := env.rooms.CreateRoom(utCtxt, "hub-ut-private", true, owner.ID)
	assert.Nil(err)

	ownerSession := newFakeSession(owner.ID, owner.Name)
	guestSession := newFakeSession(guest.ID, guest.Name)
	assert.Nil(env.uut.Connect(utCtxt, ownerSession))
	assert.Nil(env.uut.Connect(utCtxt, guestSession))

	// Case 0: member joins, no announcement to the joiner
	env.uut.HandleInbound(utCtxt, ownerSession, roomFrame(ClientJoinRoom, public.ID))
	assert.True(env.groups.IsSubscribed(public.ID, ownerSession))
	assert.NotContains(ownerSession.receivedTypes(), EventUserJoined)

	// Case 1: non-member joining a public room gets an implicit grant,
	// and existing members are notified
	env.uut.HandleInbound(utCtxt, guestSession, roomFrame(ClientJoinRoom, public.ID))
	assert.True(env.groups.IsSubscribed(public.ID, guestSession))
	member, err := env.rooms.IsMember(utCtxt, public.ID, guest.ID)
	assert.Nil(err)
	assert.True(member)
	assert.Contains(ownerSession.receivedTypes(), EventUserJoined)
	assert.NotContains(guestSession.receivedTypes(), EventUserJoined)

	// Case 2: non-member joining a private room is refused
	env.uut.HandleInbound(utCtxt, guestSession, roomFrame(ClientJoinRoom, hidden.ID))
	assert.False(env.groups.IsSubscribed(hidden.ID, guestSession))
	assert.Contains(guestSession.receivedTypes(), EventError)
	member, err = env.rooms.IsMember(utCtxt, hidden.ID, guest.ID)
	assert.Nil(err)
	assert.False(member)

	// Case 3: joining an absent room is refused
	env.uut.HandleInbound(
		utCtxt, guestSession, roomFrame(ClientJoinRoom, uuid.New().String()),
	)
	assert.Contains(guestSession.receivedTypes(), EventError)

	// Case 4: leave unsubscribes and notifies the group, but the persisted
	// membership survives
	env.uut.HandleInbound(utCtxt, guestSession, roomFrame(ClientLeaveRoom, public.ID))
	assert.False(env.groups.IsSubscribed(public.ID, guestSession))
	assert.Contains(ownerSession.receivedTypes(), EventUserLeft)
	member, err = env.rooms.IsMember(utCtxt, public.ID, guest.ID)
	assert.Nil(err)
	assert.True(member)

	// Case 5: leaving a room the session never joined announces nothing
	priorOwnerEvents := len(ownerSession.received())
	env.uut.HandleInbound(utCtxt, guestSession, roomFrame(ClientLeaveRoom, public.ID))
	assert.Len(ownerSession.received(), priorOwnerEvents)
}

func TestHubSendAndTyping(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	env := getHubTestEnv(t)
	utCtxt := context.Background()

	owner, err := env.users.CreateUser(utCtxt, "hub-send-ut-owner", "hash")
	assert.Nil(err)
	guest, err := env.users.CreateUser(utCtxt, "hub-send-ut-guest", "hash")
	assert.Nil(err)
	room, err := env.rooms.CreateRoom(utCtxt, "hub-send-ut-room", false, owner.ID)
	assert.Nil(err)

	ownerSession := newFakeSession(owner.ID, owner.Name)
	guestSession := newFakeSession(guest.ID, guest.Name)
	assert.Nil(env.uut.Connect(utCtxt, ownerSession))
	assert.Nil(env.uut.Connect(utCtxt, guestSession))
	env.uut.HandleInbound(utCtxt, ownerSession, roomFrame(ClientJoinRoom, room.ID))
	env.uut.HandleInbound(utCtxt, guestSession, roomFrame(ClientJoinRoom, room.ID))

	// Case 0: send delivers to the other member only
	env.uut.HandleInbound(utCtxt, ownerSession, frame(ClientSendMessage, map[string]string{
		"room_id": room.ID, "content": "hello from hub",
	}))
	assert.Contains(guestSession.receivedTypes(), EventNewMessage)
	assert.NotContains(ownerSession.receivedTypes(), EventNewMessage)
	page, err := env.messages.ListRoomMessages(utCtxt, room.ID, 10, 0)
	assert.Nil(err)
	assert.Len(page, 1)
	assert.Equal("hello from hub", page[0].Content)

	// Case 1: invalid payload produces an error event, nothing persisted
	env.uut.HandleInbound(utCtxt, ownerSession, frame(ClientSendMessage, map[string]string{
		"room_id": room.ID, "content": "",
	}))
	assert.Contains(ownerSession.receivedTypes(), EventError)
	page, err = env.messages.ListRoomMessages(utCtxt, room.ID, 10, 0)
	assert.Nil(err)
	assert.Len(page, 1)

	// Case 2: typing reaches the other member only
	env.uut.HandleInbound(utCtxt, ownerSession, roomFrame(ClientTypingStart, room.ID))
	found := false
	for _, event := range guestSession.received() {
		if event.Type == EventUserTyping {
			payload, ok := event.Data.(UserPayload)
			assert.True(ok)
			assert.Equal(owner.ID, payload.UserID)
			assert.NotNil(payload.Typing)
			assert.True(*payload.Typing)
			found = true
		}
	}
	assert.True(found)
	assert.NotContains(ownerSession.receivedTypes(), EventUserTyping)

	// Case 3: typing from an unsubscribed session goes nowhere
	lurker := newFakeSession(uuid.New().String(), "hub-send-ut-lurker")
	priorGuestEvents := len(guestSession.received())
	env.uut.HandleInbound(utCtxt, lurker, roomFrame(ClientTypingStart, room.ID))
	assert.Len(guestSession.received(), priorGuestEvents)

	// Case 4: unknown event type
	env.uut.HandleInbound(utCtxt, ownerSession, frame("dance", map[string]string{}))
	assert.Contains(ownerSession.receivedTypes(), EventError)
}

func TestHubDisconnect(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	env := getHubTestEnv(t)
	utCtxt := context.Background()

	owner, err := env.users.CreateUser(utCtxt, "hub-dc-ut-owner", "hash")
	assert.Nil(err)
	guest, err := env.users.CreateUser(utCtxt, "hub-dc-ut-guest", "hash")
	assert.Nil(err)

	roomIDs := []string{}
	for itr := 0; itr < 3; itr++ {
		room, err := env.rooms.CreateRoom(
			utCtxt, fmt.Sprintf("hub-dc-ut-room-%d", itr), false, owner.ID,
		)
		assert.Nil(err)
		roomIDs = append(roomIDs, room.ID)
	}

	ownerSession := newFakeSession(owner.ID, owner.Name)
	guestSession := newFakeSession(guest.ID, guest.Name)
	assert.Nil(env.uut.Connect(utCtxt, ownerSession))
	assert.Nil(env.uut.Connect(utCtxt, guestSession))
	for _, roomID := range roomIDs {
		env.uut.HandleInbound(utCtxt, ownerSession, roomFrame(ClientJoinRoom, roomID))
		env.uut.HandleInbound(utCtxt, guestSession, roomFrame(ClientJoinRoom, roomID))
	}

	env.uut.HandleDisconnect(utCtxt, guestSession)

	// The session is gone from the registry and every group
	_, exists := env.registry.Lookup(guest.ID)
	assert.False(exists)
	for _, roomID := range roomIDs {
		assert.False(env.groups.IsSubscribed(roomID, guestSession))
	}

	// The owner heard a user_left per shared room plus the offline notice
	leftCount := 0
	for _, event := range ownerSession.receivedTypes() {
		if event == EventUserLeft {
			leftCount++
		}
	}
	assert.Equal(3, leftCount)
	assert.Contains(ownerSession.receivedTypes(), EventUserOffline)

	// Later broadcasts never reach the dead session
	priorGuestEvents := len(guestSession.received())
	env.groups.Broadcast(roomIDs[0], ErrorEvent("ut"), nil)
	assert.Len(guestSession.received(), priorGuestEvents)

	// Offline state persisted
	readBack, err := env.users.GetUser(utCtxt, guest.ID)
	assert.Nil(err)
	assert.False(readBack.Online)

	// Disconnect of an already-disconnected session is a no-op
	env.uut.HandleDisconnect(utCtxt, guestSession)
}
