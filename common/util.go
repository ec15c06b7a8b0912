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
	"os"

	"github.com/apex/log"
)

// Component base structure for a Component
type Component struct {
	LogTags log.Fields
}

// GetUnitTestNatsURI fetch the NATS URI for running unit-tests
func GetUnitTestNatsURI() string {
	if uri, ok := os.LookupEnv("UNITTEST_NATS_URI"); ok {
		return uri
	}
	return "nats://127.0.0.1:4222"
}

// GetUnitTestRedisAddr fetch the Redis address for running unit-tests
func GetUnitTestRedisAddr() string {
	if addr, ok := os.LookupEnv("UNITTEST_REDIS_ADDR"); ok {
		return addr
	}
	return "127.0.0.1:6379"
}
