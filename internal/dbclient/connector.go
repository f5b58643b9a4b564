package dbclient

import (
	"context"
	"fmt"

	"geoetl/internal/domain"
)

// Column describes one destination column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number" | "boolean" | "json"
}

// Row holds one value per Column, in column order.
type Row []any

// Connector abstracts writing rows into an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// WriteRows creates table if needed, adds any missing columns, and
	// inserts rows in one transaction. With replace set, existing rows are
	// deleted first, even when rows is empty.
	WriteRows(ctx context.Context, table string, cols []Column, rows []Row, replace bool) (int, error)

	// Close closes the connection.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
// The password must be provided separately (from SecretStore).
func NewConnector(conn *domain.DatabaseConnection, password string) (Connector, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn)
	case domain.DatabaseDriverMySQL:
		return newSQLConnector(mysqlDialect, buildMySQLDSN(conn, password))
	case domain.DatabaseDriverPostgres:
		return newSQLConnector(postgresDialect, buildPostgresDSN(conn, password))
	case domain.DatabaseDriverMongoDB:
		return newMongoConnector(conn, password)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
