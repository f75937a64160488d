package db

import (
	"database/sql"
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for SQLite timestamp
// columns, so that string order matches time order and the first ten
// characters are the calendar date.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t for a SQLite TEXT timestamp column.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FormatNullTime renders an optional timestamp; nil maps to NULL.
func FormatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

// ParseTime reads a timestamp written by FormatTime.
func ParseTime(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// ParseNullTime reads an optional timestamp written by FormatNullTime.
func ParseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := ParseTime(s.String)
	return &t
}

// IsUniqueViolation reports whether err is a SQLite unique constraint failure.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
