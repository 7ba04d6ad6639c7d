package config

import "time"

// RedisConfig holds settings for the shared rate-limit counter store.
type RedisConfig struct {
	Addr     string        `mapstructure:"ADDR"     json:"addr"     validate:"required,listen_addr"`
	Password string        `mapstructure:"PASSWORD" json:"-"        validate:"omitempty"`
	DB       int           `mapstructure:"DB"       json:"db"       validate:"min=0,max=15"`
	Timeout  time.Duration `mapstructure:"TIMEOUT"  json:"timeout"  validate:"required"`
}
