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

package common

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

type utTaskAlpha struct {
	value string
}

type utTaskBeta struct {
	value int
}

func TestTaskProcessorRouting(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut, err := GetNewTaskProcessorInstance("ut-routing", 4, utCtxt)
	assert.Nil(err)

	alphaSeen := make(chan utTaskAlpha, 4)
	betaSeen := make(chan utTaskBeta, 4)
	assert.Nil(uut.SetTaskExecutionMap(map[reflect.Type]TaskHandler{
		reflect.TypeOf(utTaskAlpha{}): func(param interface{}) error {
			task, ok := param.(utTaskAlpha)
			assert.True(ok)
			alphaSeen <- task
			return nil
		},
		reflect.TypeOf(utTaskBeta{}): func(param interface{}) error {
			task, ok := param.(utTaskBeta)
			assert.True(ok)
			betaSeen <- task
			return nil
		},
	}))

	// Case 0: unknown task type is rejected by direct processing
	assert.NotNil(uut.ProcessNewTaskParam("random-string"))

	assert.Nil(uut.StartEventLoop(&wg))

	// Case 1: tasks are routed by type
	assert.Nil(uut.Submit(utCtxt, utTaskAlpha{value: "hello"}))
	assert.Nil(uut.Submit(utCtxt, utTaskBeta{value: 2}))
	{
		ctxt, cancel := context.WithTimeout(utCtxt, time.Second)
		defer cancel()
		select {
		case task := <-alphaSeen:
			assert.Equal("hello", task.value)
		case <-ctxt.Done():
			assert.False(true)
		}
		select {
		case task := <-betaSeen:
			assert.Equal(2, task.value)
		case <-ctxt.Done():
			assert.False(true)
		}
	}

	// Case 2: submit fails after stop
	assert.Nil(uut.StopEventLoop())
	{
		ctxt, cancel := context.WithTimeout(context.Background(), time.Millisecond*100)
		defer cancel()
		// Either the buffered channel accepts it, or the stopped context rejects it.
		// Fill the buffer to force the rejection path.
		rejected := false
		for itr := 0; itr < 8; itr++ {
			if err := uut.Submit(ctxt, utTaskAlpha{value: "after-stop"}); err != nil {
				rejected = true
				break
			}
		}
		assert.True(rejected)
	}
}

func TestTaskDemuxProcessor(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut, err := GetNewTaskDemuxProcessorInstance("ut-demux", 4, 3, utCtxt)
	assert.Nil(err)

	seen := make(chan utTaskBeta, 16)
	assert.Nil(uut.SetTaskExecutionMap(map[reflect.Type]TaskHandler{
		reflect.TypeOf(utTaskBeta{}): func(param interface{}) error {
			task, ok := param.(utTaskBeta)
			assert.True(ok)
			seen <- task
			return nil
		},
	}))
	assert.Nil(uut.StartEventLoop(&wg))

	testTasks := 9
	for itr := 0; itr < testTasks; itr++ {
		assert.Nil(uut.Submit(utCtxt, utTaskBeta{value: itr}))
	}

	received := map[int]bool{}
	for itr := 0; itr < testTasks; itr++ {
		ctxt, cancel := context.WithTimeout(utCtxt, time.Second)
		select {
		case task := <-seen:
			received[task.value] = true
		case <-ctxt.Done():
			assert.False(true)
		}
		cancel()
	}
	assert.Len(received, testTasks)

	assert.Nil(uut.StopEventLoop())
}
