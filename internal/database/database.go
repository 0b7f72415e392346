// Package database holds connection settings shared by the direct-connection
// drivers.
package database

import "time"

type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
)

// Default timeouts for direct connections.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultIdleTimeout    = 30 * time.Second
	DefaultCloseTimeout   = 5 * time.Second
)

// ConnectionConfig describes one direct destination connection. A session
// opens at most one connection from it.
type ConnectionConfig struct {
	DatabaseType    DatabaseType
	PostgresUrl     string
	SSLMode         string // applied only when the URL has no sslmode
	ApplicationName string
	ConnectTimeout  time.Duration
	IdleTimeout     time.Duration
	CloseTimeout    time.Duration
}

// WithDefaults fills zero values.
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	if c.DatabaseType == "" {
		c.DatabaseType = DatabaseTypePostgres
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	return c
}
