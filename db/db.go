// Package db is the bot's local operational journal: webhook delivery
// dedup and the transition feed behind the live event stream. It is
// advisory only. All state the deployment lifecycle depends on lives
// on the platform, so losing this file loses convenience, not
// correctness.
package db

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func Make(dbPath string) (*DB, error) {
	// https://github.com/mattn/go-sqlite3#connection-string
	opts := []string{
		"_foreign_keys=1",
		"_journal_mode=WAL",
		"_synchronous=NORMAL",
	}

	db, err := sql.Open("sqlite3", dbPath+"?"+strings.Join(opts, "&"))
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		create table if not exists deliveries (
			guid text primary key,
			event text not null,
			created integer not null -- unix nanos
		);

		create table if not exists transitions (
			id integer primary key autoincrement,
			environment text not null,
			sha text not null,
			state text not null,
			detail text not null default '',
			created integer not null -- unix nanos
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}
