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
	"fmt"
	"time"

	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/core"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// EventPublisher publishes room events, presence changes, and durable tasks
// into JetStream
type EventPublisher interface {
	// PublishRoomEvent broadcast an event on a room's subject
	PublishRoomEvent(ctxt context.Context, roomID string, event interface{}) error
	// PublishPresence broadcast a user presence change
	PublishPresence(ctxt context.Context, update PresenceUpdate) error
	// SubmitTask append a task to a durable work queue
	SubmitTask(ctxt context.Context, queue string, task Task) error
}

// eventPublisherImpl implements EventPublisher
type eventPublisherImpl struct {
	common.Component
	nats           *core.NatsClient
	knownQueues    map[string]bool
	publishTimeout time.Duration
}

// GetEventPublisher define a new EventPublisher
func GetEventPublisher(
	natsClient *core.NatsClient, config common.FanoutConfig, instance string,
) (EventPublisher, error) {
	logTags := log.Fields{
		"module":    "fanout",
		"component": "event-publisher",
		"instance":  instance,
	}
	knownQueues := map[string]bool{}
	for _, queue := range KnownQueues() {
		knownQueues[queue] = true
	}
	return &eventPublisherImpl{
		Component:      common.Component{LogTags: logTags},
		nats:           natsClient,
		knownQueues:    knownQueues,
		publishTimeout: time.Second * time.Duration(config.PublishTimeout),
	}, nil
}

// PublishRoomEvent broadcast an event on a room's subject
func (p *eventPublisherImpl) PublishRoomEvent(
	ctxt context.Context, roomID string, event interface{},
) error {
	serialized, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).WithFields(p.LogTags).Errorf(
			"Unable to serialize event for room %s", roomID,
		)
		return err
	}
	return p.publish(ctxt, RoomEventSubject(roomID), serialized)
}

// PublishPresence broadcast a user presence change
func (p *eventPublisherImpl) PublishPresence(
	ctxt context.Context, update PresenceUpdate,
) error {
	serialized, err := json.Marshal(&update)
	if err != nil {
		log.WithError(err).WithFields(p.LogTags).Errorf(
			"Unable to serialize presence update of %s", update.UserID,
		)
		return err
	}
	return p.publish(ctxt, PresenceSubject, serialized)
}

// SubmitTask append a task to a durable work queue
func (p *eventPublisherImpl) SubmitTask(
	ctxt context.Context, queue string, task Task,
) error {
	if !p.knownQueues[queue] {
		err := fmt.Errorf("unknown task queue %s", queue)
		log.WithError(err).WithFields(p.LogTags).Error("Unable to submit task")
		return err
	}
	task.Queue = queue
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now().UTC()
	}
	serialized, err := json.Marshal(&task)
	if err != nil {
		log.WithError(err).WithFields(p.LogTags).Errorf(
			"Unable to serialize task for queue %s", queue,
		)
		return err
	}
	return p.publish(ctxt, TaskSubject(queue), serialized)
}

// publish send one serialized payload, waiting for the stream ACK
func (p *eventPublisherImpl) publish(ctxt context.Context, subject string, msg []byte) error {
	localLogTags, err := common.UpdateLogTags(ctxt, p.LogTags)
	if err != nil {
		log.WithError(err).WithFields(p.LogTags).Errorf("Failed to update logtags")
		return err
	}
	useCtxt, cancel := context.WithTimeout(ctxt, p.publishTimeout)
	defer cancel()
	ack, err := p.nats.JetStream().PublishAsync(subject, msg)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf("Unable to send on %s", subject)
		return err
	}
	// Wait for success, failure, or timeout
	select {
	case goodSig, ok := <-ack.Ok():
		if !ok {
			err := fmt.Errorf("reading nats.PubAckFuture OK channel failure")
			log.WithError(err).WithFields(localLogTags).Errorf("Send on %s failed", subject)
			return err
		}
		log.WithFields(localLogTags).Debugf(
			"Sent [%d] to %s/%s", goodSig.Sequence, goodSig.Stream, subject,
		)
		return nil
	case txErr, ok := <-ack.Err():
		if !ok {
			err := fmt.Errorf("reading nats.PubAckFuture error channel failure")
			log.WithError(err).WithFields(localLogTags).Errorf("Send on %s failed", subject)
			return err
		}
		return txErr
	case <-useCtxt.Done():
		err := useCtxt.Err()
		log.WithError(err).WithFields(localLogTags).Errorf("Send on %s timed out", subject)
		return err
	}
}
