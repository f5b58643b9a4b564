package dbclient

import (
	"fmt"

	"geoetl/internal/domain"

	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	driverName:  "postgres",
	quote:       doubleQuote,
	placeholder: dollar,
	columnType: func(t string) string {
		switch t {
		case "number":
			return "NUMERIC"
		case "boolean":
			return "BOOLEAN"
		case "json":
			return "JSONB"
		default:
			return "TEXT"
		}
	},
}

// buildPostgresDSN constructs a Postgres connection string from a DatabaseConnection.
func buildPostgresDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		conn.Host, port, conn.Username, password, conn.Database, sslMode,
	)
}
