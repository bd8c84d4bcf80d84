package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Pool limits sized for the session store's workload: writes happen only at
// session finish, reads on replay requests.
const (
	maxOpenConns = 25
	maxIdleConns = 5
)

// Connect opens the session store's connection pool and verifies the
// database is reachable before returning it.
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}
