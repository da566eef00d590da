package stripewebhook

import (
	"embed"
	"io/fs"
)

// migrationsFS contains the SQL schema for the durable ledger and event audit
// tables, with dialect alternatives under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the postgres migration tree.
func GetMigrationsFS() fs.FS {
	sub, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		return migrationsFS
	}
	return onlyFiles{sub}
}

// GetSQLiteMigrationsFS returns the sqlite dialect migration tree.
func GetSQLiteMigrationsFS() fs.FS {
	sub, err := fs.Sub(migrationsFS, "data/sql/migrations/sqlite")
	if err != nil {
		return migrationsFS
	}
	return sub
}

// onlyFiles hides the sqlite subdirectory from the postgres tree so a dialect
// never sees the other dialect's files.
type onlyFiles struct {
	fs.FS
}

func (o onlyFiles) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, err := fs.ReadDir(o.FS, name)
	if err != nil {
		return nil, err
	}
	kept := entries[:0]
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kept = append(kept, entry)
	}
	return kept, nil
}
