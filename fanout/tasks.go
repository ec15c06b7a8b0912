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
	"fmt"
	"time"
)

// The durable task queues fed by the chat API process
const (
	// QueueMessageProcessing post-persistence processing of new messages
	QueueMessageProcessing = "message_processing"
	// QueueUserNotifications notification delivery for mentioned or offline users
	QueueUserNotifications = "user_notifications"
	// QueueRoomActivities bookkeeping on room level activity
	QueueRoomActivities = "room_activities"
	// QueueMessageLogging message audit logging
	QueueMessageLogging = "message_logging"
)

// KnownQueues the full set of durable task queues
func KnownQueues() []string {
	return []string{
		QueueMessageProcessing,
		QueueUserNotifications,
		QueueRoomActivities,
		QueueMessageLogging,
	}
}

// PresenceSubject the subject carrying user presence change events
const PresenceSubject = "chat.presence"

// roomEventSubjectPattern matches every room event subject
const roomEventSubjectPattern = "chat.room.*"

// taskSubjectPattern matches every task queue subject
const taskSubjectPattern = "task.*"

// RoomEventSubject the subject carrying events of one room
func RoomEventSubject(roomID string) string {
	return fmt.Sprintf("chat.room.%s", roomID)
}

// TaskSubject the subject feeding one durable task queue
func TaskSubject(queue string) string {
	return fmt.Sprintf("task.%s", queue)
}

// Task one unit of deferred work queued for the task worker
type Task struct {
	// ID uniquely identifies this task
	ID string `json:"id"`
	// Queue names the durable queue the task was submitted to
	Queue string `json:"queue"`
	// Kind describes the work requested
	Kind string `json:"kind"`
	// RoomID references the room involved, if any
	RoomID string `json:"room_id,omitempty"`
	// UserID references the user involved, if any
	UserID string `json:"user_id,omitempty"`
	// MessageID references the message involved, if any
	MessageID string `json:"message_id,omitempty"`
	// SubmittedAt is when the task entered the queue
	SubmittedAt time.Time `json:"submitted_at"`
}

// PresenceUpdate one user presence change broadcast on the presence subject
type PresenceUpdate struct {
	// UserID identifies the user whose presence changed
	UserID string `json:"user_id"`
	// Name is the user display name
	Name string `json:"name"`
	// Online is the new presence state
	Online bool `json:"online"`
	// At is when the change occurred
	At time.Time `json:"at"`
}
