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
	"errors"
	"time"

	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/core"
	"github.com/apex/log"
	"github.com/nats-io/nats.go"
)

// StreamProvisioner prepares the JetStream streams backing fan-out
type StreamProvisioner interface {
	// EnsureStreams define the event and task streams if they do not exist yet
	EnsureStreams() error
}

// streamProvisionerImpl implements StreamProvisioner
type streamProvisionerImpl struct {
	common.Component
	nats   *core.NatsClient
	config common.FanoutConfig
}

// GetStreamProvisioner define a new StreamProvisioner
func GetStreamProvisioner(
	natsClient *core.NatsClient, config common.FanoutConfig,
) (StreamProvisioner, error) {
	logTags := log.Fields{
		"module":    "fanout",
		"component": "stream-provisioner",
	}
	return &streamProvisionerImpl{
		Component: common.Component{LogTags: logTags},
		nats:      natsClient,
		config:    config,
	}, nil
}

// EnsureStreams define the event and task streams if they do not exist yet
func (p *streamProvisionerImpl) EnsureStreams() error {
	// The event stream carries room and presence events to every live server
	// instance. Retention is interest free; events age out on TTL.
	if err := p.ensureStream(nats.StreamConfig{
		Name:      p.config.EventStream,
		Subjects:  []string{roomEventSubjectPattern, PresenceSubject},
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Second * time.Duration(p.config.EventTTL),
	}); err != nil {
		return err
	}
	// The task stream backs the durable work queues. Work-queue retention
	// removes a task once a worker ACKs it.
	return p.ensureStream(nats.StreamConfig{
		Name:      p.config.TaskStream,
		Subjects:  []string{taskSubjectPattern},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    time.Second * time.Duration(p.config.TaskTTL),
	})
}

func (p *streamProvisionerImpl) ensureStream(param nats.StreamConfig) error {
	if _, err := p.nats.JetStream().StreamInfo(param.Name); err == nil {
		log.WithFields(p.LogTags).Debugf("Stream %s already defined", param.Name)
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		log.WithError(err).WithFields(p.LogTags).Errorf(
			"Unable to query stream %s", param.Name,
		)
		return err
	}
	if _, err := p.nats.JetStream().AddStream(&param); err != nil {
		log.WithError(err).WithFields(p.LogTags).Errorf(
			"Unable to define stream %s", param.Name,
		)
		return err
	}
	log.WithFields(p.LogTags).Infof("Defined stream %s", param.Name)
	return nil
}
