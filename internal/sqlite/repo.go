// Package sqlite is the local mirror of the remote account, kept in a
// single SQLite file.
package sqlite

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	rserrs "github.com/jdholdren/readersync/internal/errors"
	"github.com/jdholdren/readersync/internal/migrations"
	"github.com/jdholdren/readersync/internal/reader"
)

var _ reader.Store = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// Open connects to the database at path and runs all migrations.
func Open(path string) (*sqlx.DB, error) {
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %s", err)
	}

	if err := migrations.Run(dbx); err != nil {
		dbx.Close()
		return nil, fmt.Errorf("error running migrations: %s", err)
	}

	return dbx, nil
}

func storeErr(format string, err error) error {
	return rserrs.E(rserrs.KindStore, fmt.Errorf(format, err))
}
