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

import "github.com/spf13/viper"

// ===============================================================================
// NATS Related Config

// NATSReconnectConfig defines reconnect parameters
type NATSReconnectConfig struct {
	// MaxAttempts sets the max number of reconnect attempts (-1 is unlimited)
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=-1"`
	// WaitInterval is the duration between reconnect attempts in seconds
	WaitInterval int `mapstructure:"wait_interval_sec" json:"wait_interval_sec" validate:"gte=1"`
}

// NATSConfig defines parameters for connecting to NATS server
type NATSConfig struct {
	// ServerURI is the NATS connection URI
	ServerURI string `mapstructure:"server_uri" json:"server_uri" validate:"required,uri"`
	// ConnectTimeout is the max duration for connecting to NATS server in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
	// Reconnect defines reconnect parameters
	Reconnect NATSReconnectConfig `mapstructure:"reconnect" json:"reconnect" validate:"required,dive"`
}

// ===============================================================================
// Fan-out Related Config

// FanoutConfig defines the JetStream streams backing real-time fan-out
type FanoutConfig struct {
	// EventStream is the name of the stream carrying room / presence events
	EventStream string `mapstructure:"event_stream" json:"event_stream" validate:"required"`
	// EventTTL is the retention period of events in seconds
	EventTTL int `mapstructure:"event_ttl_sec" json:"event_ttl_sec" validate:"gte=1"`
	// TaskStream is the name of the stream backing the durable task queues
	TaskStream string `mapstructure:"task_stream" json:"task_stream" validate:"required"`
	// TaskTTL is the retention period of queued tasks in seconds
	TaskTTL int `mapstructure:"task_ttl_sec" json:"task_ttl_sec" validate:"gte=1"`
	// PublishTimeout is the max duration of one publish call in seconds
	PublishTimeout int `mapstructure:"publish_timeout_sec" json:"publish_timeout_sec" validate:"gte=1"`
}

// ===============================================================================
// Persistence Related Config

// DatabaseConfig defines parameters for the chat record store
type DatabaseConfig struct {
	// DSN is the database connection string
	DSN string `mapstructure:"dsn" json:"dsn" validate:"required"`
	// OpTimeout is the max duration of one store operation in seconds
	OpTimeout int `mapstructure:"op_timeout_sec" json:"op_timeout_sec" validate:"gte=1"`
}

// ===============================================================================
// Authentication Related Config

// AuthConfig defines bearer credential parameters
type AuthConfig struct {
	// SigningSecret is the HMAC secret used to sign bearer tokens
	SigningSecret string `mapstructure:"signing_secret" json:"-" validate:"required,min=16"`
	// TokenLifetime is the bearer token lifetime in minutes
	TokenLifetime int `mapstructure:"token_lifetime_min" json:"token_lifetime_min" validate:"gte=1"`
	// Issuer is the token issuer name
	Issuer string `mapstructure:"issuer" json:"issuer" validate:"required"`
}

// ===============================================================================
// Presence Related Config

// PresenceCacheConfig defines the optional Redis presence mirror
type PresenceCacheConfig struct {
	// Server is the Redis address as host:port
	Server string `mapstructure:"server" json:"server" validate:"required,hostname_port"`
	// KeyPrefix is prepended to every presence key
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix" validate:"required"`
	// EntryTTL is the lifetime of a presence entry in seconds
	EntryTTL int `mapstructure:"entry_ttl_sec" json:"entry_ttl_sec" validate:"gte=1"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body in seconds. A zero or negative
	// value means there will be no timeout.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out
	// writes of the response in seconds. A zero or negative value
	// means there will be no timeout.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled in seconds. If
	// IdleTimeout is zero, the value of ReadTimeout is used. If
	// both are zero, there is no timeout.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// HTTPConfig defines HTTP API / server parameters
type HTTPConfig struct {
	// Server defines HTTP server parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required,dive"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" validate:"required,dive"`
}

// ===============================================================================
// Websocket Related Config

// WebsocketConfig defines real-time connection parameters
type WebsocketConfig struct {
	// MaxMessageSize is the read limit on one inbound frame in bytes
	MaxMessageSize int64 `mapstructure:"max_message_size" json:"max_message_size" validate:"gte=512"`
	// SendBufferDepth is the per-connection outbound event buffer depth
	SendBufferDepth int `mapstructure:"send_buffer_depth" json:"send_buffer_depth" validate:"gte=1"`
	// PingInterval is the keep-alive ping period in seconds
	PingInterval int `mapstructure:"ping_interval_sec" json:"ping_interval_sec" validate:"gte=1"`
	// PongWait is the max duration to wait for a pong in seconds
	PongWait int `mapstructure:"pong_wait_sec" json:"pong_wait_sec" validate:"gte=1"`
}

// ===============================================================================
// Chat Server Related Config

// ChatServerEndpointConfig defines chat API endpoint config
type ChatServerEndpointConfig struct {
	// PathPrefix is the end-point path prefix for the chat APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// ChatServerConfig defines configuration for the chat API server
type ChatServerConfig struct {
	// HTTPSetting is the HTTP API / server parameters for the chat API server
	HTTPSetting HTTPConfig `mapstructure:"api_server" json:"api_server" validate:"required,dive"`
	// Endpoints is the API endpoint config parameters for the chat API server
	Endpoints ChatServerEndpointConfig `mapstructure:"endpoint_config" json:"endpoint_config" validate:"required,dive"`
	// Websocket is the real-time connection parameters
	Websocket WebsocketConfig `mapstructure:"websocket" json:"websocket" validate:"required,dive"`
}

// ===============================================================================
// Task Worker Related Config

// TaskWorkerConfig defines configuration for the task queue worker
type TaskWorkerConfig struct {
	// Queues is the set of task queues this worker drains
	Queues []string `mapstructure:"queues" json:"queues" validate:"required,min=1"`
	// DeliveryGroup allows multiple worker instances to share the queues
	DeliveryGroup string `mapstructure:"delivery_group" json:"delivery_group" validate:"required"`
	// MaxInflight is the max number of un-ACKed tasks permitted in-flight
	MaxInflight int `mapstructure:"max_inflight" json:"max_inflight" validate:"gte=1"`
	// ProcessorWorkers is the number of parallel task executors. With one,
	// tasks execute serially; with more, they are demuxed round-robin.
	ProcessorWorkers int `mapstructure:"processor_workers" json:"processor_workers" validate:"gte=1"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config used by either chat or worker process
type SystemConfig struct {
	// NATS are the NATS related config parameters
	NATS NATSConfig `mapstructure:"nats" json:"nats" validate:"required,dive"`
	// Fanout are the fan-out stream config parameters
	Fanout FanoutConfig `mapstructure:"fanout" json:"fanout" validate:"required,dive"`
	// Database are the record store config parameters
	Database DatabaseConfig `mapstructure:"database" json:"database" validate:"required,dive"`
	// Auth are the bearer credential config parameters
	Auth AuthConfig `mapstructure:"auth" json:"auth" validate:"required,dive"`
	// Presence is the optional Redis presence mirror config
	Presence *PresenceCacheConfig `mapstructure:"presence,omitempty" json:"presence,omitempty" validate:"omitempty,dive"`
	// Chat are the chat API server configs
	Chat *ChatServerConfig `mapstructure:"chat,omitempty" json:"chat,omitempty" validate:"omitempty,dive"`
	// Worker are the task queue worker configs
	Worker *TaskWorkerConfig `mapstructure:"worker,omitempty" json:"worker,omitempty" validate:"omitempty,dive"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default NATS settings
	viper.SetDefault("nats.server_uri", "nats://127.0.0.1:4222")
	viper.SetDefault("nats.connect_timeout_sec", 30)
	viper.SetDefault("nats.reconnect.max_attempts", -1)
	viper.SetDefault("nats.reconnect.wait_interval_sec", 15)

	// Default fan-out settings
	viper.SetDefault("fanout.event_stream", "chatEVENTS")
	viper.SetDefault("fanout.event_ttl_sec", 3600)
	viper.SetDefault("fanout.task_stream", "chatTASKS")
	viper.SetDefault("fanout.task_ttl_sec", 86400)
	viper.SetDefault("fanout.publish_timeout_sec", 5)

	// Default record store settings
	viper.SetDefault("database.dsn", "chatmq.sqlite")
	viper.SetDefault("database.op_timeout_sec", 10)

	// Default auth settings
	// Dev-only signing secret. Operators must override this in production.
	viper.SetDefault("auth.signing_secret", "chatmq-dev-signing-secret")
	viper.SetDefault("auth.token_lifetime_min", 1440)
	viper.SetDefault("auth.issuer", "chatmq")

	// Default chat server settings
	viper.SetDefault("chat.endpoint_config.path_prefix", "/")
	viper.SetDefault("chat.api_server.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("chat.api_server.server_config.listen_port", 3000)
	viper.SetDefault("chat.api_server.server_config.read_timeout_sec", 60)
	viper.SetDefault("chat.api_server.server_config.write_timeout_sec", 60)
	viper.SetDefault("chat.api_server.server_config.idle_timeout_sec", 600)
	viper.SetDefault(
		"chat.api_server.logging_config.request_id_header", "Chatmq-Request-ID",
	)
	viper.SetDefault(
		"chat.api_server.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)
	viper.SetDefault("chat.websocket.max_message_size", 8192)
	viper.SetDefault("chat.websocket.send_buffer_depth", 64)
	viper.SetDefault("chat.websocket.ping_interval_sec", 54)
	viper.SetDefault("chat.websocket.pong_wait_sec", 60)

	// Default task worker settings
	viper.SetDefault("worker.queues", []string{
		"message_processing", "user_notifications", "room_activities", "message_logging",
	})
	viper.SetDefault("worker.delivery_group", "chatmq-workers")
	viper.SetDefault("worker.max_inflight", 4)
	viper.SetDefault("worker.processor_workers", 2)
}
