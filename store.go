package debal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"

	"go-debal/database"
)

var (
	// ErrInvalidTableName is returned when a table prefix is not a safe PostgreSQL identifier.
	ErrInvalidTableName = errors.New("table name must contain only lowercase letters, numbers, and underscores, and start with a letter")

	// validTableNamePattern validates PostgreSQL-safe identifiers
	validTableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// EventStore persists scheduler events and channel histories of one simulation run.
// It implements EventSink; a failed write is logged and the simulation continues.
type EventStore struct {
	db        *sql.DB
	tableName string
	runID     uuid.UUID
	queries   *database.Queries
	logger    *slog.Logger
}

// NewEventStore migrates the tables prefixed with tableName and starts a new run.
func NewEventStore(db *sql.DB, tableName string, opts ...Option) (*EventStore, error) {
	if err := ValidateTableName(tableName); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	if err := database.Migrate(db, tableName); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	var o = buildOptions(opts)
	return &EventStore{
		db:        db,
		tableName: tableName,
		runID:     uuid.New(),
		queries:   database.NewQueries(db, tableName),
		logger:    o.logger,
	}, nil
}

// ValidateTableName checks if tableName is valid for use as a PostgreSQL identifier prefix.
func ValidateTableName(tableName string) error {
	if tableName == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTableName)
	}

	// leaves room for the "_samples" suffix
	if len(tableName) > 55 {
		return fmt.Errorf("%w: must be 55 characters or less", ErrInvalidTableName)
	}

	if !validTableNamePattern.MatchString(tableName) {
		return ErrInvalidTableName
	}

	return nil
}

// RunID identifies the rows written by this store.
func (s *EventStore) RunID() uuid.UUID {
	return s.runID
}

// Emit implements EventSink.
func (s *EventStore) Emit(e Event) {
	var record = &database.EventRecord{
		RunID:       s.runID,
		EventType:   string(e.Type),
		SimTime:     e.Time,
		LeaderID:    string(e.Leader),
		NodeID:      string(e.Node),
		Path:        pathToStrings(e.Path),
		Amount:      e.Amount,
		Improvement: e.Improvement,
		Reason:      e.Reason,
	}

	if err := s.queries.InsertEvent(context.Background(), record); err != nil {
		s.logger.Error("failed to store event",
			"event_type", e.Type,
			"run_id", s.runID,
			"error", err)
	}
}

// Events returns the stored events of this run in emission order.
func (s *EventStore) Events(ctx context.Context) ([]Event, error) {
	var records, err = s.queries.ListEvents(ctx, s.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var events = make([]Event, len(records))
	for i, record := range records {
		events[i] = Event{
			Type:        EventType(record.EventType),
			Time:        record.SimTime,
			Leader:      NodeID(record.LeaderID),
			Node:        NodeID(record.NodeID),
			Path:        stringsToPath(record.Path),
			Amount:      record.Amount,
			Improvement: record.Improvement,
			Reason:      record.Reason,
		}
	}

	return events, nil
}

// SaveHistory writes every balance sample of every channel view of nodes in one transaction.
func (s *EventStore) SaveHistory(ctx context.Context, nodes []*Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var queries = database.NewQueries(tx, s.tableName)
	for _, n := range nodes {
		for _, peer := range n.Peers() {
			for seq, sample := range n.History(peer) {
				var record = &database.SampleRecord{
					RunID:         s.runID,
					NodeID:        string(n.ID),
					PeerID:        string(peer),
					Seq:           seq,
					SimTime:       sample.Timestamp,
					LocalBalance:  sample.LocalBalance,
					RemoteBalance: sample.RemoteBalance,
				}
				if err := queries.InsertSample(ctx, record); err != nil {
					return fmt.Errorf("failed to save history of %s -> %s: %w", n.ID, peer, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

// History loads the stored samples of the channel view node -> peer.
func (s *EventStore) History(ctx context.Context, node, peer NodeID) ([]BalanceSample, error) {
	var records, err = s.queries.ListSamples(ctx, s.runID, string(node), string(peer))
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}

	var history = make([]BalanceSample, len(records))
	for i, record := range records {
		history[i] = BalanceSample{
			Timestamp:     record.SimTime,
			LocalBalance:  record.LocalBalance,
			RemoteBalance: record.RemoteBalance,
		}
	}
	return history, nil
}

func pathToStrings(p Path) []string {
	var out = make([]string, len(p))
	for i, id := range p {
		out[i] = string(id)
	}
	return out
}

func stringsToPath(ids []string) Path {
	if len(ids) == 0 {
		return nil
	}
	var p = make(Path, len(ids))
	for i, id := range ids {
		p[i] = NodeID(id)
	}
	return p
}
