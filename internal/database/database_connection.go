/*
database_connection.go - Connection Management

Connection pool configuration and error classification. Even though
writes are serialized through DB.writeMu, the pool still bounds how many
concurrent reads DuckDB will service.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"strings"
	"time"
)

// isConnectionError checks if an error indicates database connection loss.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "bad connection") ||
		strings.Contains(errMsg, "driver: bad connection") ||
		strings.Contains(errMsg, "database is closed") ||
		strings.Contains(errMsg, "sql: database is closed")
}

// configureConnectionPool sets connection pool parameters. MaxOpenConns is
// capped at 1: the single-writer invariant makes a larger pool pointless
// for writes, and keeps read concurrency bounded and predictable.
func (db *DB) configureConnectionPool() error {
	db.conn.SetMaxOpenConns(1)
	db.conn.SetMaxIdleConns(1)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
	return nil
}

// isTransactionConflict checks if an error is a DuckDB transaction conflict.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update") ||
		strings.Contains(errStr, "cannot update a table that has been altered")
}
