package session

import (
	"embed"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for hosts that manage the
// credentials schema through their own migration runner instead of relying
// on BunStore's lazy table creation.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
