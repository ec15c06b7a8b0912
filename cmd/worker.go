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

package cmd

import (
	"context"
	"sync"

	"github.com/alwitt/chatmq/common"
	"github.com/alwitt/chatmq/core"
	"github.com/alwitt/chatmq/fanout"
	"github.com/alwitt/chatmq/worker"
	"github.com/apex/log"
)

// RunTaskWorker run the task queue worker
func RunTaskWorker(
	runtimeContext context.Context,
	config *common.SystemConfig,
	instance string,
	natsClient *core.NatsClient,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "task-worker",
		"instance":  instance,
	}

	// The worker may start before any chat server has run; make sure the
	// streams exist before subscribing against them
	provisioner, err := fanout.GetStreamProvisioner(natsClient, config.Fanout)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define stream provisioner")
		return err
	}
	if err := provisioner.EnsureStreams(); err != nil {
		log.WithError(err).WithFields(logTags).Error("Stream provisioning failed")
		return err
	}

	taskWorker, err := worker.GetTaskWorker(
		runtimeContext, natsClient, *config.Worker, worker.DefaultTaskCallback(),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define task worker")
		return err
	}
	if err := taskWorker.Start(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start task worker")
		return err
	}

	log.WithFields(logTags).Infof(
		"Draining %d task queues as %s", len(config.Worker.Queues), config.Worker.DeliveryGroup,
	)

	<-runtimeContext.Done()

	return nil
}
