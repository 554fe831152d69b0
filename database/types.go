package database

import (
	"time"

	"github.com/google/uuid"
)

// EventRecord represents a scheduler event in the database.
type EventRecord struct {
	ID          int64
	RunID       uuid.UUID
	EventType   string
	SimTime     time.Duration
	LeaderID    string
	NodeID      string
	Path        []string
	Amount      float64
	Improvement float64
	Reason      string
}

// SampleRecord represents one balance-history sample of a channel view.
type SampleRecord struct {
	RunID         uuid.UUID
	NodeID        string
	PeerID        string
	Seq           int
	SimTime       time.Duration
	LocalBalance  float64
	RemoteBalance float64
}
