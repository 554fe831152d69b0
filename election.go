package debal

import (
	"log/slog"
	"math"
	"time"
)

// Announcement is the leader claim broadcast after an election.
type Announcement struct {
	LeaderID  NodeID
	Timestamp time.Duration
	Hash      string
}

// Election holds the process-wide election state for one simulation run.
// It is Vacant while no leader is held and Held while a term runs.
type Election struct {
	kappa  float64
	theta  float64
	deltaT time.Duration
	logger *slog.Logger

	currentLeader NodeID
	hasLeader     bool
	termStart     time.Duration
}

// NewElection creates a vacant election state. It reads kappa, theta and delta_t from the options.
func NewElection(opts ...Option) *Election {
	var o = buildOptions(opts)
	return &Election{
		kappa:  o.kappa,
		theta:  o.theta,
		deltaT: o.deltaT,
		logger: o.logger,
	}
}

// Leader returns the current leader, if any.
func (e *Election) Leader() (NodeID, bool) {
	return e.currentLeader, e.hasLeader
}

// TermStart returns the time of the last successful election.
func (e *Election) TermStart() time.Duration {
	return e.termStart
}

// TermLength returns delta_t.
func (e *Election) TermLength() time.Duration {
	return e.deltaT
}

// IsEligible reports whether n may lead: it must be requesting rebalancing and own
// a channel with local/capacity >= kappa or |local-remote| >= capacity*theta.
func (e *Election) IsEligible(n *Node) bool {
	if n == nil || !n.RebalancingRequested {
		return false
	}

	for _, ch := range n.Channels() {
		if ch.LocalBalance/ch.Capacity >= e.kappa {
			return true
		}
		if math.Abs(ch.LocalBalance-ch.RemoteBalance) >= ch.Capacity*e.theta {
			return true
		}
	}
	return false
}

// Elect returns the leader for now and the start of its term.
//
// While the term runs and the incumbent is still eligible the incumbent is returned
// without recomputation. Otherwise the eligible node with the largest hash wins; ties
// go to the smallest node id. With no eligible node it returns (nil, now) and keeps the
// state, except that an incumbent found ineligible in nodes is dropped.
func (e *Election) Elect(nodes []*Node, now time.Duration) (*Node, time.Duration) {
	var incumbent = e.findIncumbent(nodes)
	if incumbent != nil && now-e.termStart < e.deltaT && e.IsEligible(incumbent) {
		return incumbent, e.termStart
	}

	var (
		winner     *Node
		winnerHash string
	)
	for _, n := range nodes {
		if !e.IsEligible(n) {
			continue
		}

		var hash = electionHash(n.ID, now)
		if winner == nil || hash > winnerHash || (hash == winnerHash && n.ID < winner.ID) {
			winner = n
			winnerHash = hash
		}
	}

	if winner == nil {
		if incumbent != nil && !e.IsEligible(incumbent) {
			e.logger.Info("leader lost eligibility, no replacement",
				"leader_id", e.currentLeader,
				"sim_time", now)
			e.Vacate()
		}
		return nil, now
	}

	e.currentLeader = winner.ID
	e.hasLeader = true
	e.termStart = now
	return winner, now
}

// Vacate drops the current leader. The term start is kept.
func (e *Election) Vacate() {
	e.currentLeader = ""
	e.hasLeader = false
}

// findIncumbent resolves the current leader among nodes.
func (e *Election) findIncumbent(nodes []*Node) *Node {
	if !e.hasLeader {
		return nil
	}
	for _, n := range nodes {
		if n.ID == e.currentLeader {
			return n
		}
	}
	return nil
}

// Announce builds the verifiable claim for leader elected at timestamp.
func (e *Election) Announce(leader *Node, timestamp time.Duration) Announcement {
	return Announcement{
		LeaderID:  leader.ID,
		Timestamp: timestamp,
		Hash:      electionHash(leader.ID, timestamp),
	}
}

// Verify recomputes the hash, resolves the leader among nodes and re-checks eligibility.
// Any mismatch rejects the announcement.
func (e *Election) Verify(a Announcement, nodes []*Node) bool {
	if a.Hash != electionHash(a.LeaderID, a.Timestamp) {
		return false
	}

	for _, n := range nodes {
		if n.ID == a.LeaderID {
			return e.IsEligible(n)
		}
	}
	return false
}
