package domain

import "database/sql"

// ToNullString converts a string to sql.NullString, treating "" as NULL.
func ToNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NullStringValue returns the string value of a sql.NullString, or "" if NULL.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
