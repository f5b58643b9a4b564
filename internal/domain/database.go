package domain

import (
	"fmt"
	"strings"
)

// DatabaseDriver represents the type of database engine a job writes into.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// DatabaseConnection holds the metadata for connecting to a destination database.
// The password is never stored here; it is looked up in a SecretStore under SecretKey.
type DatabaseConnection struct {
	Driver    DatabaseDriver    `json:"driver" yaml:"driver"`
	Host      string            `json:"host" yaml:"host"`         // hostname, file path (sqlite) or full mongodb URI
	Port      int               `json:"port" yaml:"port"`         // 0 means driver default
	Database  string            `json:"database" yaml:"database"` // db name, empty for sqlite
	Username  string            `json:"username" yaml:"username"`
	SSLMode   string            `json:"sslMode" yaml:"sslMode"`
	SecretKey string            `json:"secretKey,omitempty" yaml:"secretKey"`
	Options   map[string]string `json:"options,omitempty" yaml:"options"` // driver-specific query parameters
}

// Validate checks the fields every driver needs.
func (c DatabaseConnection) Validate() error {
	switch c.Driver {
	case DatabaseDriverSQLite:
		if strings.TrimSpace(c.Host) == "" {
			return fmt.Errorf("sqlite target requires host (file path)")
		}
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverMongoDB:
		if strings.TrimSpace(c.Host) == "" {
			return fmt.Errorf("%s target requires host", c.Driver)
		}
	case "":
		return fmt.Errorf("target driver is required")
	default:
		return fmt.Errorf("unsupported driver: %s", c.Driver)
	}
	return nil
}
