package dbutil

import (
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Rebind turns gendry's "?" placeholders into postgres "$n" ones.
func Rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

func IsConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
