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

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/core"
	"github.com/alwitt/chatmq/fanout"
	"github.com/apex/log"
	"github.com/nats-io/nats.go"
)

// TaskCallback processes one dequeued task
type TaskCallback func(ctxt context.Context, task fanout.Task) error

// TaskWorker drains the durable task queues. Delivery is at-least-once; a
// task is ACKed only after its callback returns.
type TaskWorker interface {
	// Start begin draining the configured queues
	Start(wg *sync.WaitGroup) error
}

// serializedTask one undecoded queue delivery awaiting processing
type serializedTask struct {
	payload []byte
	ack     func(...nats.AckOpt) error
}

// taskWorkerImpl implements TaskWorker
type taskWorkerImpl struct {
	common.Component
	nats      *core.NatsClient
	config    common.TaskWorkerConfig
	callback  TaskCallback
	processor common.TaskProcessor
	started   bool
	lock      sync.Mutex
	ctxt      context.Context
}

// GetTaskWorker define a new TaskWorker
func GetTaskWorker(
	ctxt context.Context,
	natsClient *core.NatsClient,
	config common.TaskWorkerConfig,
	callback TaskCallback,
) (TaskWorker, error) {
	logTags := log.Fields{
		"module":    "worker",
		"component": "task-worker",
		"group":     config.DeliveryGroup,
	}
	var processor common.TaskProcessor
	var err error
	if config.ProcessorWorkers > 1 {
		processor, err = common.GetNewTaskDemuxProcessorInstance(
			"task-worker", config.MaxInflight, config.ProcessorWorkers, ctxt,
		)
	} else {
		processor, err = common.GetNewTaskProcessorInstance(
			"task-worker", config.MaxInflight, ctxt,
		)
	}
	if err != nil {
		return nil, err
	}
	worker := &taskWorkerImpl{
		Component: common.Component{LogTags: logTags},
		nats:      natsClient,
		config:    config,
		callback:  callback,
		processor: processor,
		ctxt:      ctxt,
	}
	if err := processor.AddToTaskExecutionMap(
		reflect.TypeOf(serializedTask{}), worker.processQueuedTask,
	); err != nil {
		return nil, err
	}
	return worker, nil
}

// processQueuedTask TaskProcessor handler for one queue delivery
func (w *taskWorkerImpl) processQueuedTask(param interface{}) error {
	queued, ok := param.(serializedTask)
	if !ok {
		return fmt.Errorf("received unexpected task param of type %s", reflect.TypeOf(param))
	}
	return w.handleSerializedTask(w.ctxt, queued.payload, queued.ack)
}

// Start begin draining the configured queues
func (w *taskWorkerImpl) Start(wg *sync.WaitGroup) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.started {
		err := fmt.Errorf("already started")
		log.WithError(err).WithFields(w.LogTags).Error("Unable to start task worker")
		return err
	}
	// All queue subscriptions feed one processor; processor_workers sets
	// how many tasks may execute at once
	if err := w.processor.StartEventLoop(wg); err != nil {
		log.WithError(err).WithFields(w.LogTags).Error("Unable to start task event loop")
		return err
	}
	for _, queue := range w.config.Queues {
		subject := fanout.TaskSubject(queue)
		consumer := fmt.Sprintf("%s-%s", w.config.DeliveryGroup, queue)
		sub, err := w.nats.JetStream().QueueSubscribeSync(
			subject,
			w.config.DeliveryGroup,
			nats.Durable(consumer),
			nats.ManualAck(),
			nats.AckExplicit(),
			nats.MaxAckPending(w.config.MaxInflight),
		)
		if err != nil {
			log.WithError(err).WithFields(w.LogTags).Errorf(
				"Unable to subscribe on %s", subject,
			)
			return err
		}
		wg.Add(1)
		go func(queue string, sub *nats.Subscription) {
			defer wg.Done()
			w.drainQueue(queue, sub)
		}(queue, sub)
	}
	w.started = true
	return nil
}

// drainQueue read one queue until the worker context ends
func (w *taskWorkerImpl) drainQueue(queue string, sub *nats.Subscription) {
	localLogTags := log.Fields{}
	for key, value := range w.LogTags {
		localLogTags[key] = value
	}
	localLogTags["queue"] = queue
	log.WithFields(localLogTags).Info("Draining task queue")
	defer log.WithFields(localLogTags).Info("Stopped draining task queue")
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Unsubscribe failed")
		}
	}()
	for {
		msg, err := sub.NextMsgWithContext(w.ctxt)
		if err != nil {
			if w.ctxt.Err() == nil {
				log.WithError(err).WithFields(localLogTags).Error("Queue read failure")
			}
			return
		}
		if err := w.processor.Submit(w.ctxt, serializedTask{
			payload: msg.Data, ack: msg.AckSync,
		}); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Task submission failed")
		}
	}
}

// handleSerializedTask decode one task, run the callback, and ACK. Malformed
// payloads are ACKed as well; redelivery cannot repair them.
func (w *taskWorkerImpl) handleSerializedTask(
	ctxt context.Context, payload []byte, ack func(...nats.AckOpt) error,
) error {
	var task fanout.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		log.WithError(err).WithFields(w.LogTags).Error("Discarding malformed task")
		if ackErr := ack(); ackErr != nil {
			log.WithError(ackErr).WithFields(w.LogTags).Error("Task ACK failed")
		}
		return err
	}
	if err := w.callback(ctxt, task); err != nil {
		// No ACK; the queue redelivers the task
		return err
	}
	if err := ack(); err != nil {
		log.WithError(err).WithFields(w.LogTags).Errorf(
			"ACK of task %s failed", task.ID,
		)
		return err
	}
	return nil
}

// DefaultTaskCallback the stock task handlers: message processing and
// notification tasks are logged, audit tasks produce an audit log entry
func DefaultTaskCallback() TaskCallback {
	logTags := log.Fields{
		"module":    "worker",
		"component": "task-handlers",
	}
	return func(_ context.Context, task fanout.Task) error {
		taskLogTags := log.Fields{}
		for key, value := range logTags {
			taskLogTags[key] = value
		}
		taskLogTags["task"] = task.ID
		taskLogTags["kind"] = task.Kind
		switch task.Queue {
		case fanout.QueueMessageProcessing:
			log.WithFields(taskLogTags).Infof(
				"Processed message %s of room %s", task.MessageID, task.RoomID,
			)
		case fanout.QueueMessageLogging:
			log.WithFields(taskLogTags).Infof(
				"AUDIT message=%s room=%s user=%s submitted=%s",
				task.MessageID, task.RoomID, task.UserID,
				task.SubmittedAt.Format("2006-01-02T15:04:05Z07:00"),
			)
		case fanout.QueueUserNotifications:
			log.WithFields(taskLogTags).Infof(
				"Notification task for user %s", task.UserID,
			)
		case fanout.QueueRoomActivities:
			log.WithFields(taskLogTags).Infof(
				"Room activity task for room %s", task.RoomID,
			)
		default:
			log.WithFields(taskLogTags).Warnf("Unknown task queue %s", task.Queue)
		}
		return nil
	}
}
