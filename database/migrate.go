package database

import (
	"database/sql"
	"fmt"
)

var (
	createEventsTableSQL = `
CREATE TABLE IF NOT EXISTS %s_events (
    id            BIGSERIAL          PRIMARY KEY,
    run_id        UUID               NOT NULL,
    event_type    VARCHAR            NOT NULL,
    sim_time_ns   BIGINT             NOT NULL,
    leader_id     VARCHAR            NOT NULL DEFAULT '',
    node_id       VARCHAR            NOT NULL DEFAULT '',
    path          TEXT[]             NOT NULL DEFAULT '{}',
    amount        DOUBLE PRECISION   NOT NULL DEFAULT 0,
    improvement   DOUBLE PRECISION   NOT NULL DEFAULT 0,
    reason        VARCHAR            NOT NULL DEFAULT ''
);`

	createEventsIndexSQL = `
CREATE INDEX IF NOT EXISTS %s
ON %s_events (run_id, id);`

	createSamplesTableSQL = `
CREATE TABLE IF NOT EXISTS %s_samples (
    run_id           UUID               NOT NULL,
    node_id          VARCHAR            NOT NULL,
    peer_id          VARCHAR            NOT NULL,
    seq              INTEGER            NOT NULL,
    sim_time_ns      BIGINT             NOT NULL,
    local_balance    DOUBLE PRECISION   NOT NULL,
    remote_balance   DOUBLE PRECISION   NOT NULL,

    PRIMARY KEY (run_id, node_id, peer_id, seq)
);`
)

// Migrate creates the events and samples tables with indexes.
func Migrate(db *sql.DB, tableName string) error {
	if err := createEventsTable(db, tableName); err != nil {
		return err
	}

	if err := createEventsIndex(db, tableName); err != nil {
		return err
	}

	if err := createSamplesTable(db, tableName); err != nil {
		return err
	}

	return nil
}

func createEventsTable(db *sql.DB, tableName string) error {
	var query = fmt.Sprintf(createEventsTableSQL, tableName)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}
	return nil
}

func createEventsIndex(db *sql.DB, tableName string) error {
	var (
		indexName = fmt.Sprintf("%s_events_run_idx", tableName)
		query     = fmt.Sprintf(createEventsIndexSQL, indexName, tableName)
	)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create events index: %w", err)
	}
	return nil
}

func createSamplesTable(db *sql.DB, tableName string) error {
	var query = fmt.Sprintf(createSamplesTableSQL, tableName)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create samples table: %w", err)
	}
	return nil
}
