package database

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by single-row lookups that match no record.
var ErrNotFound = errors.New("database: record not found")

// ErrInvalidQuery is returned by Query when passed a non-SELECT statement.
var ErrInvalidQuery = errors.New("database: invalid query")

// SessionMisuseError marks the source's "session in use by multiple
// tasks" / instance-refresh class of error. Explicitly non-retryable
// (§4.12) — it indicates a programming error in session scoping, not a
// transient condition.
type SessionMisuseError struct{ Op string }

func (e SessionMisuseError) Error() string {
	return fmt.Sprintf("database: session misuse in %s", e.Op)
}

// retryablePatterns lists the substrings of sqlite driver error messages
// that the spec calls out as transient: busy/locked/disk-i/o/connection
// invalidated. Session-state errors are deliberately absent.
var retryablePatterns = []string{
	"database is locked",
	"disk i/o error",
	"database table is locked",
	"connection invalidated",
	"busy",
	"bad connection",
}

// IsRetryableStorageError reports whether err belongs to the small set of
// transient storage failures §4.12 allows the caller to retry. Built on
// the same contains/findSubstring helpers as the connection pool's health
// check (pool.go); msg is lowercased first because those helpers compare
// bytes exactly.
func IsRetryableStorageError(err error) bool {
	if err == nil {
		return false
	}
	var misuse SessionMisuseError
	if errors.As(err, &misuse) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if contains(msg, pattern) {
			return true
		}
	}
	return false
}
