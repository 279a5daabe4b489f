// Package db provides database connection handling for Vidclass.
package db

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// Connection pool settings. The API mostly runs short single-row inserts and
// one ordered scan per stats request, so a modest pool suffices.
const (
	MaxOpenConns    = 25
	MaxIdleConns    = 5
	ConnMaxLifetime = 30 * time.Minute
)

// Open opens a PostgreSQL connection pool for the given URL. It does not
// dial; callers should ping if they need to verify connectivity.
func Open(databaseURL string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	pool.SetMaxOpenConns(MaxOpenConns)
	pool.SetMaxIdleConns(MaxIdleConns)
	pool.SetConnMaxLifetime(ConnMaxLifetime)

	return pool, nil
}
