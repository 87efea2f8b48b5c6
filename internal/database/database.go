package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// NewDB opens and pings a Postgres connection for the conversation
// store. The URL comes from configuration (database.url / DATABASE_URL).
func NewDB(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return db, nil
}
