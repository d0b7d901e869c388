package cli

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/AaronLay10/SentientTimeline/internal/config"
	"github.com/AaronLay10/SentientTimeline/internal/storage/postgres"
)

// openPostgres connects with the PG* environment. roomID only labels event
// rows the command appends.
func openPostgres(roomID string) (*postgres.Client, error) {
	env, err := config.ParseEnv()
	if err != nil {
		return nil, err
	}
	if !env.Postgres.Enabled() {
		return nil, fmt.Errorf("PGHOST is not set")
	}
	return postgres.New(env.Postgres.DSN(), roomID)
}

// openSQLite opens a local scene_steps database, as used by offline room
// builds.
func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	return db, nil
}
