package etl

import (
	"context"
	"fmt"

	"geoetl/internal/dbclient"
	"geoetl/internal/domain"
	"geoetl/internal/secret"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes records into a target system.
//
// Pattern: Singer target protocol.

// SyncMode determines how records are written to the destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // delete all existing rows, insert fresh
	SyncAppend  SyncMode = "append"  // add rows without deleting existing
)

// Target names a destination database and the table (or collection) a job
// writes into.
type Target struct {
	domain.DatabaseConnection `yaml:",inline"`
	Table                     string `json:"table" yaml:"table"`
}

// Validate checks the connection and table.
func (t Target) Validate() error {
	if err := t.DatabaseConnection.Validate(); err != nil {
		return err
	}
	if t.Table == "" {
		return fmt.Errorf("target table is required")
	}
	return nil
}

// Destination opens a Sink for a target.
type Destination interface {
	Open(ctx context.Context, target Target) (Sink, error)
}

// Sink receives batches of records for one run.
type Sink interface {
	// Write stores records. With SyncReplace the target is emptied first,
	// even when records is empty.
	Write(ctx context.Context, schema *Schema, records []Record, mode SyncMode) (int, error)
	Close() error
}

// ── Table Destination ──────────────────────────────────────
// Writes records as rows of an external database table via dbclient.

// TableWriter implements Destination for SQL and MongoDB targets.
type TableWriter struct {
	Secrets secret.SecretStore // may be nil when no target needs a password

	// Connect is overridable in tests.
	Connect func(conn *domain.DatabaseConnection, password string) (dbclient.Connector, error)
}

func (w *TableWriter) Open(ctx context.Context, target Target) (Sink, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	var password string
	if target.SecretKey != "" && w.Secrets != nil {
		pw, err := w.Secrets.Get(target.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("get password: %w", err)
		}
		password = string(pw)
	}

	connect := w.Connect
	if connect == nil {
		connect = dbclient.NewConnector
	}
	conn := target.DatabaseConnection
	c, err := connect(&conn, password)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := c.TestConnection(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("connect %s: %w", target.Driver, err)
	}
	return &tableSink{conn: c, table: target.Table}, nil
}

type tableSink struct {
	conn  dbclient.Connector
	table string
}

func (s *tableSink) Write(ctx context.Context, schema *Schema, records []Record, mode SyncMode) (int, error) {
	if schema == nil || len(schema.Fields) == 0 {
		return 0, fmt.Errorf("write %s: empty schema", s.table)
	}
	cols := make([]dbclient.Column, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = dbclient.Column{Name: f.Name, Type: f.Type}
	}

	rows := make([]dbclient.Row, len(records))
	for i, rec := range records {
		row := make(dbclient.Row, len(cols))
		for j, col := range cols {
			row[j], _ = rec.Value(col.Name)
		}
		rows[i] = row
	}
	return s.conn.WriteRows(ctx, s.table, cols, rows, mode == SyncReplace)
}

func (s *tableSink) Close() error {
	return s.conn.Close()
}
