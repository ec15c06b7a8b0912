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
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMessageEndpointsSendAndHistory(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	env := getAPITestEnv(t)
	uut, err := GetAPIRestMessageHandler(env.service, env.messages, env.rooms, &env.http)
	assert.Nil(err)

	sender := env.registerTestUser(t, fmt.Sprintf("ut-user-%s", uuid.New().String()))
	outsider := env.registerTestUser(t, fmt.Sprintf("ut-user-%s", uuid.New().String()))
	room, err := env.rooms.CreateRoom(
		context.Background(), fmt.Sprintf("ut-room-%s", uuid.New().String()), false, sender.ID,
	)
	assert.Nil(err)

	// Case 0: send a message; type defaults to text
	var messageID string
	{
		recorder := httptest.NewRecorder()
		uut.SendMessage(recorder, jsonRequest(
			t, "POST", "/v1/messages", APIRestReqSendMessage{
				RoomID: room.ID, Content: "hello room",
			}, &sender,
		))
		assert.Equal(http.StatusOK, recorder.Code)
		var resp APIRestRespMessage
		decodeResponse(t, recorder, &resp)
		assert.Equal("hello room", resp.Message.Content)
		assert.Equal("text", resp.Message.Type)
		assert.Equal(sender.ID, resp.Message.SenderID)
		messageID = resp.Message.ID
	}
	assert.NotEmpty(messageID)

	// Case 1: non-members cannot send into the room
	{
		recorder := httptest.NewRecorder()
		uut.SendMessage(recorder, jsonRequest(
			t, "POST", "/v1/messages", APIRestReqSendMessage{
				RoomID: room.ID, Content: "should not land",
			}, &outsider,
		))
		assert.Equal(http.StatusBadRequest, recorder.Code)
	}

	// Case 2: oversized content is refused
	{
		recorder := httptest.NewRecorder()
		uut.SendMessage(recorder, jsonRequest(
			t, "POST", "/v1/messages", APIRestReqSendMessage{
				RoomID: room.ID, Content: strings.Repeat("x", 2001),
			}, &sender,
		))
		assert.Equal(http.StatusBadRequest, recorder.Code)
	}

	// Case 3: members read the history newest first
	{
		recorder := httptest.NewRecorder()
		uut.SendMessage(recorder, jsonRequest(
			t, "POST", "/v1/messages", APIRestReqSendMessage{
				RoomID: room.ID, Content: "second message",
			}, &sender,
		))
		assert.Equal(http.StatusOK, recorder.Code)

		recorder = httptest.NewRecorder()
		uut.ListRoomMessages(recorder, withPathVars(
			jsonRequest(t, "GET", "/v1/messages/room/"+room.ID, nil, &sender),
			map[string]string{"roomID": room.ID},
		))
		assert.Equal(http.StatusOK, recorder.Code)
		var resp APIRestRespMessageList
		decodeResponse(t, recorder, &resp)
		assert.Len(resp.Messages, 2)
	}

	// Case 4: paging with limit and offset
	{
		recorder := httptest.NewRecorder()
		uut.ListRoomMessages(recorder, withPathVars(
			jsonRequest(
				t, "GET", "/v1/messages/room/"+room.ID+"?limit=1&offset=1", nil, &sender,
			),
			map[string]string{"roomID": room.ID},
		))
		assert.Equal(http.StatusOK, recorder.Code)
		var resp APIRestRespMessageList
		decodeResponse(t, recorder, &resp)
		assert.Len(resp.Messages, 1)
		assert.Equal("hello room", resp.Messages[0].Content)
	}

	// Case 5: non-members cannot read the history
	{
		recorder := httptest.NewRecorder()
		uut.ListRoomMessages(recorder, withPathVars(
			jsonRequest(t, "GET", "/v1/messages/room/"+room.ID, nil, &outsider),
			map[string]string{"roomID": room.ID},
		))
		assert.Equal(http.StatusForbidden, recorder.Code)
	}

	// Case 6: malformed paging parameters are refused
	{
		recorder := httptest.NewRecorder()
		uut.ListRoomMessages(recorder, withPathVars(
			jsonRequest(
				t, "GET", "/v1/messages/room/"+room.ID+"?limit=none", nil, &sender,
			),
			map[string]string{"roomID": room.ID},
		))
		assert.Equal(http.StatusBadRequest, recorder.Code)
	}
}

func TestMessageEndpointsEditAndDelete(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	env := getAPITestEnv(t)
	uut, err := GetAPIRestMessageHandler(env.service, env.messages, env.rooms, &env.http)
	assert.Nil(err)

	sender := env.registerTestUser(t, fmt.Sprintf("ut-user-%s", uuid.New().String()))
	member := env.registerTestUser(t, fmt.Sprintf("ut-user-%s", uuid.New().String()))
	room, err := env.rooms.CreateRoom(
		context.Background(), fmt.Sprintf("ut-room-%s", uuid.New().String()), false, sender.ID,
	)
	assert.Nil(err)
	_, err = env.rooms.AddMember(context.Background(), room.ID, member.ID)
	assert.Nil(err)

	message, err := env.messages.CreateMessage(
		context.Background(), room.ID, sender.ID, "original content", "text",
	)
	assert.Nil(err)

	// Case 0: only the sender may edit
	{
		recorder := httptest.NewRecorder()
		uut.EditMessage(recorder, withPathVars(
			jsonRequest(
				t, "PUT", "/v1/messages/"+message.ID,
				APIRestReqEditMessage{Content: "hijacked"}, &member,
			),
			map[string]string{"messageID": message.ID},
		))
		assert.Equal(http.StatusForbidden, recorder.Code)
	}

	// Case 1: the sender edits the content
	{
		recorder := httptest.NewRecorder()
		uut.EditMessage(recorder, withPathVars(
			jsonRequest(
				t, "PUT", "/v1/messages/"+message.ID,
				APIRestReqEditMessage{Content: "revised content"}, &sender,
			),
			map[string]string{"messageID": message.ID},
		))
		assert.Equal(http.StatusOK, recorder.Code)
		var resp APIRestRespMessage
		decodeResponse(t, recorder, &resp)
		assert.Equal("revised content", resp.Message.Content)
	}

	// Case 2: only the sender may delete
	{
		recorder := httptest.NewRecorder()
		uut.DeleteMessage(recorder, withPathVars(
			jsonRequest(t, "DELETE", "/v1/messages/"+message.ID, nil, &member),
			map[string]string{"messageID": message.ID},
		))
		assert.Equal(http.StatusForbidden, recorder.Code)

		recorder = httptest.NewRecorder()
		uut.DeleteMessage(recorder, withPathVars(
			jsonRequest(t, "DELETE", "/v1/messages/"+message.ID, nil, &sender),
			map[string]string{"messageID": message.ID},
		))
		assert.Equal(http.StatusOK, recorder.Code)
	}

	// Case 3: operations on a deleted message read as not found
	{
		recorder := httptest.NewRecorder()
		uut.EditMessage(recorder, withPathVars(
			jsonRequest(
				t, "PUT", "/v1/messages/"+message.ID,
				APIRestReqEditMessage{Content: "too late"}, &sender,
			),
			map[string]string{"messageID": message.ID},
		))
		assert.Equal(http.StatusNotFound, recorder.Code)
	}
}
