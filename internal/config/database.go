package config

import (
	"fmt"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds the connection settings for the event history and membership snapshot tables.
type DatabaseConfig struct {
	// Driver is postgres (default) or sqlite for local runs.
	Driver   string `yaml:"driver" validate:"omitempty,oneof=postgres sqlite"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	// Path is the database file when Driver is sqlite.
	Path string `yaml:"path"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	SlowThreshold   time.Duration `yaml:"slow_threshold"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == DriverSQLite {
		if c.Path == "" {
			return "file::memory:?cache=shared"
		}
		return c.Path
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode)
}
