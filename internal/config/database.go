package config

import (
	"fmt"
	"net/url"
)

// DatabaseConfig holds Postgres connection settings. When URL is set it is
// used verbatim; otherwise a URL is assembled from the discrete fields.
type DatabaseConfig struct {
	URL string `mapstructure:"URL" json:"url" validate:"omitempty"`

	Server   string `mapstructure:"SERVER"   json:"server"   validate:"omitempty,hostname|ip"`
	Port     int    `mapstructure:"PORT"     json:"port"     validate:"omitempty,min=1,max=65535"`
	Name     string `mapstructure:"NAME"     json:"name"     validate:"omitempty"`
	User     string `mapstructure:"USER"     json:"user"     validate:"omitempty"`
	Password string `mapstructure:"PASSWORD" json:"-"        validate:"omitempty"`
	SSLMode  string `mapstructure:"SSL_MODE" json:"ssl_mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
}

// ConnString returns the pgx connection string.
func (c DatabaseConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Server, c.Port),
		Path:   c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
