package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DBTX is an interface that both sql.DB and sql.Tx implement.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries provides table-aware database operations.
type Queries struct {
	db        DBTX
	tableName string
}

// NewQueries creates a new Queries instance with the given table name.
func NewQueries(db DBTX, tableName string) *Queries {
	return &Queries{
		db:        db,
		tableName: tableName,
	}
}

var (
	insertEventSQL = `
INSERT INTO %s_events (run_id, event_type, sim_time_ns, leader_id, node_id, path, amount, improvement, reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id;`

	listEventsSQL = `
SELECT id, run_id, event_type, sim_time_ns, leader_id, node_id, path, amount, improvement, reason
FROM %s_events
WHERE run_id = $1
ORDER BY id ASC;`

	insertSampleSQL = `
INSERT INTO %s_samples (run_id, node_id, peer_id, seq, sim_time_ns, local_balance, remote_balance)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (run_id, node_id, peer_id, seq)
DO UPDATE SET
    sim_time_ns = EXCLUDED.sim_time_ns,
    local_balance = EXCLUDED.local_balance,
    remote_balance = EXCLUDED.remote_balance;`

	listSamplesSQL = `
SELECT run_id, node_id, peer_id, seq, sim_time_ns, local_balance, remote_balance
FROM %s_samples
WHERE run_id = $1 AND node_id = $2 AND peer_id = $3
ORDER BY seq ASC;`

	deleteRunEventsSQL = `
DELETE FROM %s_events
WHERE run_id = $1;`

	deleteRunSamplesSQL = `
DELETE FROM %s_samples
WHERE run_id = $1;`
)

// InsertEvent stores an event and sets its generated id.
func (q *Queries) InsertEvent(ctx context.Context, event *EventRecord) error {
	var (
		query = fmt.Sprintf(insertEventSQL, q.tableName)
		path  = event.Path
	)
	if path == nil {
		path = []string{}
	}

	var err = q.db.QueryRowContext(ctx, query,
		event.RunID,
		event.EventType,
		int64(event.SimTime),
		event.LeaderID,
		event.NodeID,
		pq.Array(path),
		event.Amount,
		event.Improvement,
		event.Reason,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ListEvents returns all events of a run in insertion order.
func (q *Queries) ListEvents(ctx context.Context, runID uuid.UUID) ([]*EventRecord, error) {
	var (
		query     = fmt.Sprintf(listEventsSQL, q.tableName)
		rows, err = q.db.QueryContext(ctx, query, runID)
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		var (
			event   EventRecord
			simTime int64
		)
		if err := rows.Scan(&event.ID, &event.RunID, &event.EventType, &simTime, &event.LeaderID,
			&event.NodeID, pq.Array(&event.Path), &event.Amount, &event.Improvement, &event.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.SimTime = time.Duration(simTime)
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return events, nil
}

// InsertSample stores a balance sample. Re-inserting the same sequence number overwrites it.
func (q *Queries) InsertSample(ctx context.Context, sample *SampleRecord) error {
	var query = fmt.Sprintf(insertSampleSQL, q.tableName)
	_, err := q.db.ExecContext(ctx, query,
		sample.RunID,
		sample.NodeID,
		sample.PeerID,
		sample.Seq,
		int64(sample.SimTime),
		sample.LocalBalance,
		sample.RemoteBalance,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// ListSamples returns the history of one channel view, ordered by sequence.
func (q *Queries) ListSamples(ctx context.Context, runID uuid.UUID, nodeID, peerID string) ([]*SampleRecord, error) {
	var (
		query     = fmt.Sprintf(listSamplesSQL, q.tableName)
		rows, err = q.db.QueryContext(ctx, query, runID, nodeID, peerID)
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var samples []*SampleRecord
	for rows.Next() {
		var (
			sample  SampleRecord
			simTime int64
		)
		if err := rows.Scan(&sample.RunID, &sample.NodeID, &sample.PeerID, &sample.Seq, &simTime,
			&sample.LocalBalance, &sample.RemoteBalance); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample.SimTime = time.Duration(simTime)
		samples = append(samples, &sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return samples, nil
}

// DeleteRun removes every event and sample of a run.
func (q *Queries) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	if _, err := q.db.ExecContext(ctx, fmt.Sprintf(deleteRunEventsSQL, q.tableName), runID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, fmt.Sprintf(deleteRunSamplesSQL, q.tableName), runID); err != nil {
		return fmt.Errorf("failed to delete samples: %w", err)
	}
	return nil
}
