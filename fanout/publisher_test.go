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

package fanout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/core"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func getUnitTestFanoutConfig() common.FanoutConfig {
	return common.FanoutConfig{
		EventStream:    "chatEVENTS",
		EventTTL:       300,
		TaskStream:     "chatTASKS",
		TaskTTL:        300,
		PublishTimeout: 5,
	}
}

func getUnitTestNatsClient(t *testing.T) *core.NatsClient {
	client, err := core.GetJetStream(core.NATSConnectParams{
		ServerURI:           common.GetUnitTestNatsURI(),
		ConnectTimeout:      time.Second,
		MaxReconnectAttempt: 0,
		ReconnectWait:       time.Second,
		OnDisconnectCallback: func(_ *nats.Conn, e error) {
			if e != nil {
				log.WithError(e).Error("Disconnect callback")
			}
		},
		OnReconnectCallback: func(_ *nats.Conn) {},
		OnCloseCallback:     func(_ *nats.Conn) {},
	})
	assert.Nil(t, err)
	return client
}

func TestEventPublisherRoomEvents(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	client := getUnitTestNatsClient(t)
	utCtxt, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer client.Close(utCtxt)

	provisioner, err := GetStreamProvisioner(client, getUnitTestFanoutConfig())
	assert.Nil(err)
	assert.Nil(provisioner.EnsureStreams())

	uut, err := GetEventPublisher(client, getUnitTestFanoutConfig(), "ut-room-events")
	assert.Nil(err)

	roomID := uuid.New().String()
	sub, err := client.JetStream().SubscribeSync(
		RoomEventSubject(roomID), nats.DeliverNew(),
	)
	assert.Nil(err)
	defer func() {
		assert.Nil(sub.Unsubscribe())
	}()

	payload := map[string]string{"event": "ut-event", "room": roomID}
	assert.Nil(uut.PublishRoomEvent(utCtxt, roomID, payload))

	received, err := sub.NextMsg(time.Second * 5)
	assert.Nil(err)
	var readBack map[string]string
	assert.Nil(json.Unmarshal(received.Data, &readBack))
	assert.EqualValues(payload, readBack)
	assert.Nil(received.AckSync())
}

func TestEventPublisherPresence(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	client := getUnitTestNatsClient(t)
	utCtxt, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer client.Close(utCtxt)

	provisioner, err := GetStreamProvisioner(client, getUnitTestFanoutConfig())
	assert.Nil(err)
	assert.Nil(provisioner.EnsureStreams())

	uut, err := GetEventPublisher(client, getUnitTestFanoutConfig(), "ut-presence")
	assert.Nil(err)

	sub, err := client.JetStream().SubscribeSync(PresenceSubject, nats.DeliverNew())
	assert.Nil(err)
	defer func() {
		assert.Nil(sub.Unsubscribe())
	}()

	update := PresenceUpdate{
		UserID: uuid.New().String(),
		Name:   "presence-ut",
		Online: true,
		At:     time.Now().UTC(),
	}
	assert.Nil(uut.PublishPresence(utCtxt, update))

	received, err := sub.NextMsg(time.Second * 5)
	assert.Nil(err)
	var readBack PresenceUpdate
	assert.Nil(json.Unmarshal(received.Data, &readBack))
	assert.Equal(update.UserID, readBack.UserID)
	assert.True(readBack.Online)
	assert.Nil(received.AckSync())
}

func TestEventPublisherTaskSubmission(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	client := getUnitTestNatsClient(t)
	utCtxt, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer client.Close(utCtxt)

	provisioner, err := GetStreamProvisioner(client, getUnitTestFanoutConfig())
	assert.Nil(err)
	assert.Nil(provisioner.EnsureStreams())

	uut, err := GetEventPublisher(client, getUnitTestFanoutConfig(), "ut-tasks")
	assert.Nil(err)

	// Case 0: unknown queue rejected
	assert.NotNil(uut.SubmitTask(utCtxt, "no-such-queue", Task{Kind: "ut"}))

	// Case 1: submitted task carries ID, queue, and timestamp
	sub, err := client.JetStream().SubscribeSync(
		TaskSubject(QueueMessageLogging), nats.DeliverNew(),
	)
	assert.Nil(err)
	defer func() {
		assert.Nil(sub.Unsubscribe())
	}()

	messageID := uuid.New().String()
	assert.Nil(uut.SubmitTask(utCtxt, QueueMessageLogging, Task{
		Kind:      "log_message",
		MessageID: messageID,
	}))

	received, err := sub.NextMsg(time.Second * 5)
	assert.Nil(err)
	var readBack Task
	assert.Nil(json.Unmarshal(received.Data, &readBack))
	assert.NotEmpty(readBack.ID)
	assert.Equal(QueueMessageLogging, readBack.Queue)
	assert.Equal("log_message", readBack.Kind)
	assert.Equal(messageID, readBack.MessageID)
	assert.False(readBack.SubmittedAt.IsZero())
	assert.Nil(received.AckSync())
}
