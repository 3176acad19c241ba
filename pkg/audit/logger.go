package audit

import (
	"context"
	"database/sql"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log writes an audit event
	Log(ctx context.Context, event *Event) error

	// LogTx writes an audit event inside an existing transaction, so
	// a mutation and its audit record commit or roll back together.
	LogTx(ctx context.Context, tx *sql.Tx, event *Event) error

	// Close flushes any buffered events
	Close() error
}

// NopLogger discards all events. Useful in tests and when auditing is
// disabled.
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }

// LogTx implements Logger
func (NopLogger) LogTx(ctx context.Context, tx *sql.Tx, event *Event) error { return nil }

// Close implements Logger
func (NopLogger) Close() error { return nil }
