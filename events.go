package debal

import (
	"log/slog"
	"time"
)

// EventType names a scheduler event.
type EventType string

const (
	EventElectionAttempted    EventType = "election_attempted"
	EventElectionSucceeded    EventType = "election_succeeded"
	EventElectionVacant       EventType = "election_vacant"
	EventLeaderChanged        EventType = "leader_changed"
	EventRebalancingAttempted EventType = "rebalancing_attempted"
	EventRebalancingSucceeded EventType = "rebalancing_succeeded"
	EventRebalancingFailed    EventType = "rebalancing_failed"
)

// Event is a structured, fire-and-forget scheduler event.
type Event struct {
	Type        EventType
	Time        time.Duration
	Leader      NodeID
	Node        NodeID
	Path        Path
	Amount      float64
	Improvement float64
	Reason      string
}

// EventSink consumes scheduler events. Implementations must not block the simulation.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(e Event) {
	f(e)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []EventSink

// Emit implements EventSink.
func (m MultiSink) Emit(e Event) {
	for _, sink := range m {
		sink.Emit(e)
	}
}

// logSink writes events to slog. Per-candidate outcomes go to Debug.
type logSink struct {
	logger *slog.Logger
}

func (l logSink) Emit(e Event) {
	var attrs = []any{"sim_time", e.Time}
	if e.Leader != "" {
		attrs = append(attrs, "leader_id", e.Leader)
	}
	if e.Node != "" {
		attrs = append(attrs, "node_id", e.Node)
	}
	if len(e.Path) > 0 {
		attrs = append(attrs, "path", e.Path.String(), "amount", e.Amount)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}

	switch e.Type {
	case EventRebalancingAttempted, EventRebalancingFailed, EventElectionAttempted:
		l.logger.Debug(string(e.Type), attrs...)
	default:
		l.logger.Info(string(e.Type), attrs...)
	}
}
