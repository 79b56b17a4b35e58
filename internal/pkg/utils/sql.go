package utils

import (
	"database/sql"
	"time"
)

// ToSQLStr creates new sql str instance
func ToSQLStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// FromSQLStr returns string from sql.NullString
func FromSQLStr(sqlStr sql.NullString) string {
	if sqlStr.Valid {
		return sqlStr.String
	}
	return ""
}

// FromSQLTime returns nil for null time
func FromSQLTime(t sql.NullTime) *time.Time {
	if t.Valid {
		res := t.Time
		return &res
	}
	return nil
}
