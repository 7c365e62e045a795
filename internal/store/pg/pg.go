// Package pg implements the durable stores on Postgres, for deployments
// where several runtime nodes share one database. Records are stored as
// jsonb payloads keyed by JID, with the chat allow-list broken out into a
// text[] column so it can be queried without unpacking the payload.
//
// Reads go through an in-memory cache: the dispatch loop does synchronous
// read-modify-write on live records within a message turn, and Flush
// upserts the dirty set back. Cross-node coordination is out of scope here;
// fleets that share chats arbitrate via response de-duplication instead.
package pg

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens a Postgres connection pool via the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func loadPayload(db *sql.DB, query, key string) (json.RawMessage, bool) {
	var data []byte
	switch err := db.QueryRow(query, key).Scan(&data); err {
	case nil:
		return data, true
	case sql.ErrNoRows:
		return nil, false
	default:
		// Degrade to "not found": the record is recreated from defaults
		// and the next flush writes it back.
		slog.Warn("store read failed", "key", key, "error", err)
		return nil, false
	}
}
