package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateUploads(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.PerPage <= 0 {
		return errors.New("server.per_page must be positive")
	}
	if c.Server.SessionTTLMinutes <= 0 {
		return errors.New("server.session_ttl_minutes must be positive")
	}
	if strings.ContainsAny(c.Server.BasePath, " ?#") {
		return fmt.Errorf("server.base_path %q contains invalid characters", c.Server.BasePath)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		return nil
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
		return nil
	default:
		return fmt.Errorf("database.driver: unsupported value %q", c.Database.Driver)
	}
}

func (c *Config) validateUploads() error {
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("uploads.max_bytes must be positive")
	}
	if len(c.Uploads.AllowedExtensions) == 0 {
		return errors.New("uploads.allowed_extensions must list at least one extension")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
