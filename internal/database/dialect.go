package database

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect captures the few differences between the supported SQL backends.
// Queries are written with '?' placeholders and rebound per dialect.
type Dialect struct {
	Name          string
	numberedParam bool
}

var (
	MySQL    = Dialect{Name: "mysql"}
	Postgres = Dialect{Name: "postgres", numberedParam: true}
)

// Rebind rewrites '?' placeholders into $1, $2, ... for PostgreSQL.
func (d Dialect) Rebind(query string) string {
	if !d.numberedParam {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a unique/primary key conflict
// from either backend (MySQL 1062, PostgreSQL 23505).
func IsUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
