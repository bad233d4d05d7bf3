package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// CaseInsensitiveLikeExpr returns a SQL expression for case-insensitive LIKE.
func CaseInsensitiveLikeExpr(conn *gorm.DB, column string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("LOWER(%s) LIKE ?", column)
	}
	return fmt.Sprintf("%s ILIKE ?", column)
}

// ContainsPattern builds a %term% LIKE pattern normalized for the current dialect.
func ContainsPattern(conn *gorm.DB, term string) string {
	escaped := strings.NewReplacer("%", "", "_", "").Replace(strings.TrimSpace(term))
	pattern := "%" + escaped + "%"
	if IsSQLite(conn) {
		return strings.ToLower(pattern)
	}
	return pattern
}

// WhereContains narrows q to rows whose column contains term, ignoring case.
func WhereContains(q *gorm.DB, column, term string) *gorm.DB {
	if strings.TrimSpace(term) == "" {
		return q
	}
	return q.Where(CaseInsensitiveLikeExpr(q, column), ContainsPattern(q, term))
}
