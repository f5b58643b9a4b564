package dbclient

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dialect captures what differs between the SQL drivers we write to.
type dialect struct {
	driverName  string
	quote       func(ident string) string
	placeholder func(n int) string // 1-based
	columnType  func(fieldType string) string
}

func doubleQuote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func backtick(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
type sqlConnector struct {
	dialect dialect
	db      *sql.DB
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(d dialect, dsn string) (*sqlConnector, error) {
	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{dialect: d, db: db}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}

func (c *sqlConnector) WriteRows(ctx context.Context, table string, cols []Column, rows []Row, replace bool) (int, error) {
	if strings.TrimSpace(table) == "" {
		return 0, fmt.Errorf("table is required")
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("no columns for table %s", table)
	}
	if err := c.ensureTable(ctx, table, cols); err != nil {
		return 0, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	q := c.dialect.quote
	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+q(table)); err != nil {
			return 0, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, c.insertSQL(table, cols))
		if err != nil {
			return 0, fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, r := range rows {
			if len(r) != len(cols) {
				return 0, fmt.Errorf("row %d: %d values for %d columns", i, len(r), len(cols))
			}
			args := make([]any, len(r))
			for j, v := range r {
				args[j] = sqlValue(v)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return 0, fmt.Errorf("insert row %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

func (c *sqlConnector) insertSQL(table string, cols []Column) string {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		names[i] = c.dialect.quote(col.Name)
		marks[i] = c.dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.dialect.quote(table), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// ensureTable creates table with cols, or adds the cols it lacks.
func (c *sqlConnector) ensureTable(ctx context.Context, table string, cols []Column) error {
	q := c.dialect.quote
	defs := make([]string, len(cols))
	for i, col := range cols {
		defs[i] = q(col.Name) + " " + c.dialect.columnType(col.Type)
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", q(table), strings.Join(defs, ", "))
	if _, err := c.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	existing, err := c.columnNames(ctx, table)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if existing[strings.ToLower(col.Name)] {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", q(table), q(col.Name), c.dialect.columnType(col.Type))
		if _, err := c.db.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, col.Name, err)
		}
	}
	return nil
}

// columnNames probes the table with an empty select; works on every dialect.
func (c *sqlConnector) columnNames(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT * FROM "+c.dialect.quote(table)+" WHERE 1=0")
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = true
	}
	return m, rows.Err()
}

// sqlValue flattens nested values (GeoJSON geometry, property maps) to JSON
// text; scalars pass through to the driver.
func sqlValue(v any) any {
	switch v := v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	case json.Number:
		return numberValue(v)
	default:
		return v
	}
}

// numberValue turns a decoded JSON number into the narrowest driver type
// that holds it exactly. Integers outside int64 stay as their literal text.
func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if strings.ContainsAny(string(n), ".eE") {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return n.String()
}
