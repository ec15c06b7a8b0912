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

package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/chatmq/common"
	"github.com/apex/log"
	"github.com/redis/go-redis/v9"
)

// Cache mirrors the online user set into Redis so other services can probe
// presence without touching the record store. Entries carry a TTL; a server
// instance that dies without cleanup only leaves stale entries briefly.
type Cache interface {
	// MarkOnline record a user as online
	MarkOnline(ctxt context.Context, userID string) error
	// MarkOffline drop a user's online marker
	MarkOffline(ctxt context.Context, userID string) error
	// IsOnline probe whether a user has a live online marker
	IsOnline(ctxt context.Context, userID string) (bool, error)
	// Close release the Redis connection
	Close() error
}

// cacheImpl implements Cache
type cacheImpl struct {
	common.Component
	client    *redis.Client
	keyPrefix string
	entryTTL  time.Duration
}

// GetCache define a new presence Cache
func GetCache(config common.PresenceCacheConfig) (Cache, error) {
	logTags := log.Fields{
		"module":    "presence",
		"component": "cache",
		"instance":  config.Server,
	}
	client := redis.NewClient(&redis.Options{Addr: config.Server})
	return &cacheImpl{
		Component: common.Component{LogTags: logTags},
		client:    client,
		keyPrefix: config.KeyPrefix,
		entryTTL:  time.Second * time.Duration(config.EntryTTL),
	}, nil
}

func (c *cacheImpl) key(userID string) string {
	return fmt.Sprintf("%s:%s", c.keyPrefix, userID)
}

// MarkOnline record a user as online
func (c *cacheImpl) MarkOnline(ctxt context.Context, userID string) error {
	if err := c.client.Set(ctxt, c.key(userID), "1", c.entryTTL).Err(); err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf(
			"Unable to mark %s online", userID,
		)
		return err
	}
	return nil
}

// MarkOffline drop a user's online marker
func (c *cacheImpl) MarkOffline(ctxt context.Context, userID string) error {
	if err := c.client.Del(ctxt, c.key(userID)).Err(); err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf(
			"Unable to mark %s offline", userID,
		)
		return err
	}
	return nil
}

// IsOnline probe whether a user has a live online marker
func (c *cacheImpl) IsOnline(ctxt context.Context, userID string) (bool, error) {
	if err := c.client.Get(ctxt, c.key(userID)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		log.WithError(err).WithFields(c.LogTags).Errorf(
			"Unable to probe presence of %s", userID,
		)
		return false, err
	}
	return true, nil
}

// Close release the Redis connection
func (c *cacheImpl) Close() error {
	return c.client.Close()
}
