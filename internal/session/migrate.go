package session

import (
	"embed"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/betbot/core/database"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// MigrateSQLite applies the embedded sqlite schema.
func MigrateSQLite(db *sqlx.DB) error {
	return database.RunEmbeddedMigrations(db, sqliteMigrations, "migrations/sqlite")
}
