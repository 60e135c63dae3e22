package db

import (
	"time"

	"github.com/stagehand-dev/stagehand/orchestrator"
)

// SeenDelivery reports whether a webhook delivery guid was already
// journaled. Dedup here is a fast-path courtesy; the orchestrator
// stays correct if a duplicate slips through.
func (d *DB) SeenDelivery(guid string) (bool, error) {
	var n int
	err := d.QueryRow(`select count(1) from deliveries where guid = ?`, guid).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *DB) RecordDelivery(guid, event string) error {
	_, err := d.Exec(`
		insert into deliveries (guid, event, created)
		values (?, ?, ?)
		on conflict(guid) do nothing
	`, guid, event, time.Now().UnixNano())
	return err
}

// TransitionRow is one journaled lifecycle transition, addressable by
// a monotonically increasing cursor.
type TransitionRow struct {
	ID int64 `json:"id"`
	orchestrator.Transition
	Created int64 `json:"created"`
}

func (d *DB) RecordTransition(t orchestrator.Transition) error {
	_, err := d.Exec(`
		insert into transitions (environment, sha, state, detail, created)
		values (?, ?, ?, ?, ?)
	`, t.Environment, t.SHA, string(t.State), t.Detail, time.Now().UnixNano())
	return err
}

// Transitions returns up to 100 rows after the cursor, oldest first.
func (d *DB) Transitions(cursor int64) ([]TransitionRow, error) {
	rows, err := d.Query(`
		select id, environment, sha, state, detail, created
		from transitions
		where id > ?
		order by id asc
		limit 100
	`, cursor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRow
	for rows.Next() {
		var row TransitionRow
		if err := rows.Scan(&row.ID, &row.Environment, &row.SHA, &row.State, &row.Detail, &row.Created); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
