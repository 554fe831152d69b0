package debal

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidChannel is returned when a channel would violate non-negativity or capacity.
	ErrInvalidChannel = errors.New("invalid channel balances")

	// ErrUnknownChannel is returned when a node has no channel to the given peer.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrChannelExists is returned when opening a channel to a peer that already has one.
	ErrChannelExists = errors.New("channel already exists")

	// ErrUnknownNode is returned when a node id cannot be resolved.
	ErrUnknownNode = errors.New("unknown node")

	// ErrPathInvalid is returned when a path fails validation before any balance is touched.
	ErrPathInvalid = errors.New("rebalancing path invalid")

	// ErrTransferAborted is returned when a hop fails mid-execution and applied hops were reverted.
	ErrTransferAborted = errors.New("transfer aborted")

	// ErrInvalidTick is returned when the term length is too short to advance the clock.
	ErrInvalidTick = errors.New("scheduler tick must be positive")
)

// NodeID identifies a node in the payment-channel network.
type NodeID string

// BalanceSample is one entry of a channel's append-only balance history.
type BalanceSample struct {
	Timestamp     time.Duration
	LocalBalance  float64
	RemoteBalance float64
}

// Path is an ordered sequence of node ids along which liquidity is moved.
// It is a transient value with no identity beyond one validate/execute attempt.
type Path []NodeID

// String renders the path as "a -> b -> c".
func (p Path) String() string {
	var parts = make([]string, len(p))
	for i, id := range p {
		parts[i] = string(id)
	}
	return strings.Join(parts, " -> ")
}

// Source returns the first node of the path.
func (p Path) Source() NodeID {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Target returns the last node of the path.
func (p Path) Target() NodeID {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Reverse returns a copy of the path in the opposite direction.
func (p Path) Reverse() Path {
	var reversed = make(Path, len(p))
	for i, id := range p {
		reversed[len(p)-1-i] = id
	}
	return reversed
}

// Contains reports whether the path visits id.
func (p Path) Contains(id NodeID) bool {
	for _, n := range p {
		if n == id {
			return true
		}
	}
	return false
}

// hasRepeats reports whether any node id occurs more than once.
func (p Path) hasRepeats() bool {
	var seen = make(map[NodeID]struct{}, len(p))
	for _, id := range p {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

// ScoredPath is a candidate path re-ranked by an external scoring oracle.
type ScoredPath struct {
	Score float64
	Path  Path
}

// PathScorer re-ranks BFS-discovered candidate paths. It is optional; without one,
// candidates are tried in discovery order.
type PathScorer interface {
	ScorePaths(source NodeID, paths []Path) []ScoredPath
}

// TrafficRates are the empirical payment rates observed at a node.
type TrafficRates struct {
	Outgoing float64
	Incoming float64
}

// TrafficSource reports per-node traffic rates produced by an external load generator.
type TrafficSource interface {
	Rates(id NodeID) (TrafficRates, bool)
}

// StaticTraffic is a TrafficSource with fixed rates per node.
type StaticTraffic map[NodeID]TrafficRates

// Rates implements TrafficSource.
func (s StaticTraffic) Rates(id NodeID) (TrafficRates, bool) {
	var rates, ok = s[id]
	return rates, ok
}
