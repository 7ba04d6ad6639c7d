package config

import "time"

// PushConfig holds live-stream delivery settings.
type PushConfig struct {
	ListenAddr string `mapstructure:"LISTEN_ADDR" json:"listen_addr" validate:"required,listen_addr"`

	// MaxConnectionsPerUser caps concurrent stream connections per user.
	MaxConnectionsPerUser int `mapstructure:"MAX_CONNECTIONS_PER_USER" json:"max_connections_per_user" validate:"required,min=1,max=64"`

	// HeartbeatInterval is the idle keepalive cadence on open streams.
	HeartbeatInterval time.Duration `mapstructure:"HEARTBEAT_INTERVAL" json:"heartbeat_interval" validate:"required,reasonable_duration"`

	// HandshakeBurst caps stream connection attempts accepted per second
	// across the process, smoothing client reconnect storms.
	HandshakeBurst int `mapstructure:"HANDSHAKE_BURST" json:"handshake_burst" validate:"required,min=1,max=10000"`
}
