package dbclient

import (
	"fmt"
	"net/url"
	"sort"

	"geoetl/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	driverName:  "mysql",
	quote:       backtick,
	placeholder: questionMark,
	columnType: func(t string) string {
		switch t {
		case "number":
			return "DOUBLE"
		case "boolean":
			return "BOOLEAN"
		case "json":
			return "JSON"
		default:
			return "TEXT"
		}
	},
}

// buildMySQLDSN constructs a MySQL DSN from a DatabaseConnection.
func buildMySQLDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		conn.Username, password, conn.Host, port, conn.Database,
	)
	if conn.SSLMode == "require" {
		dsn += "&tls=true"
	}
	keys := make([]string, 0, len(conn.Options))
	for k := range conn.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dsn += "&" + url.QueryEscape(k) + "=" + url.QueryEscape(conn.Options[k])
	}
	return dsn
}
