package dbclient

import (
	"geoetl/internal/domain"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	driverName:  "sqlite",
	quote:       doubleQuote,
	placeholder: questionMark,
	columnType: func(t string) string {
		switch t {
		case "number":
			return "NUMERIC"
		case "boolean":
			return "INTEGER"
		default:
			return "TEXT"
		}
	},
}

// newSQLiteConnector creates a connector for an external SQLite file.
// Opens in WAL mode with busy timeout for concurrent access.
func newSQLiteConnector(conn *domain.DatabaseConnection) (*sqlConnector, error) {
	dsn := conn.Host + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	return newSQLConnector(sqliteDialect, dsn)
}
