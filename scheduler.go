package debal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

// Scheduler drives one simulation: it advances the clock in ticks of delta_t/10 and on
// every tick runs the liquidity monitor, the election check and rebalancing for the
// requesting nodes. Everything happens sequentially in node order.
type Scheduler struct {
	nodes    []*Node
	index    map[NodeID]*Node
	clock    Clock
	election *Election
	engine   *Engine
	monitor  *Monitor
	options  options
	rng      *rand.Rand
	sink     EventSink

	leader       *Node
	lastElection time.Duration
}

// NewScheduler creates a scheduler over the nodes currently in network.
// The election, engine and monitor are built from the same options.
func NewScheduler(network *Network, opts ...Option) *Scheduler {
	var (
		o     = buildOptions(opts)
		nodes = network.Nodes()
	)

	var sink EventSink = logSink{logger: o.logger}
	if o.sink != nil {
		sink = MultiSink{sink, o.sink}
	}

	var s = &Scheduler{
		nodes:    nodes,
		index:    make(map[NodeID]*Node, len(nodes)),
		clock:    network.clock,
		election: NewElection(opts...),
		engine:   NewEngine(nodes, opts...),
		monitor:  NewMonitor(opts...),
		options:  o,
		rng:      rand.New(rand.NewSource(o.seed)),
		sink:     sink,
	}
	for _, n := range nodes {
		s.index[n.ID] = n
	}
	return s
}

// Election returns the election state driven by the scheduler.
func (s *Scheduler) Election() *Election {
	return s.election
}

// Engine returns the rebalancing engine used by the scheduler.
func (s *Scheduler) Engine() *Engine {
	return s.engine
}

// CurrentLeader returns the leader the scheduler acts on, if any.
func (s *Scheduler) CurrentLeader() (*Node, bool) {
	return s.leader, s.leader != nil
}

// Tick returns the simulated step length.
func (s *Scheduler) Tick() time.Duration {
	return s.options.deltaT / 10
}

// Run steps the simulation until the clock reaches horizon. Cancelling ctx stops it early.
func (s *Scheduler) Run(ctx context.Context, horizon time.Duration) error {
	s.options.logger.Info("simulation started",
		"nodes", len(s.nodes),
		"horizon", horizon,
		"tick", s.Tick())

	for s.clock.Now() < horizon {
		if err := s.Step(ctx); err != nil {
			return err
		}
	}

	s.options.logger.Info("simulation finished",
		"sim_time", s.clock.Now(),
		"pending_requests", s.pendingRequests())
	return nil
}

// Step runs a single tick and advances the clock by delta_t/10.
// A term shorter than ten nanoseconds is rejected since the clock could never advance.
func (s *Scheduler) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("simulation stopped at %s: %w", s.clock.Now(), err)
	}
	if s.Tick() <= 0 {
		return fmt.Errorf("%w: delta_t %s", ErrInvalidTick, s.options.deltaT)
	}

	var now = s.clock.Now()
	s.assessLiquidity()

	if s.ShouldTriggerElection(now) {
		s.PerformElection(now)
	}

	if s.leader != nil && s.pendingRequests() > 0 {
		s.TriggerRebalancing(now)
	}

	s.clock.Sleep(s.Tick())
	return nil
}

// assessLiquidity flags nodes the monitor considers at risk. It never clears a flag.
func (s *Scheduler) assessLiquidity() {
	if s.options.traffic == nil {
		return
	}

	for _, n := range s.nodes {
		if n.RebalancingRequested {
			continue
		}
		var rates, ok = s.options.traffic.Rates(n.ID)
		if !ok {
			continue
		}
		if s.monitor.ShouldRequestRebalancing(n, rates) {
			n.RequestRebalancing()
			s.options.logger.Debug("rebalancing requested by monitor",
				"node_id", n.ID,
				"time_to_depletion", s.monitor.TimeToDepletion(n, rates))
		}
	}
}

// ShouldTriggerElection reports whether an election is due at now: there is no leader
// and someone is requesting, the leader is no longer eligible, or its term has elapsed.
func (s *Scheduler) ShouldTriggerElection(now time.Duration) bool {
	if s.leader == nil {
		return s.pendingRequests() > 0
	}
	if !s.election.IsEligible(s.leader) {
		return true
	}
	return now-s.lastElection >= s.options.deltaT
}

// PerformElection runs an election and propagates a new term to every node's cached view.
func (s *Scheduler) PerformElection(now time.Duration) {
	s.sink.Emit(Event{Type: EventElectionAttempted, Time: now})

	var winner, timestamp = s.election.Elect(s.nodes, now)
	if winner == nil {
		s.sink.Emit(Event{Type: EventElectionVacant, Time: now})
		if _, held := s.election.Leader(); !held && s.leader != nil {
			s.vacate()
		}
		return
	}

	var announcement = s.election.Announce(winner, timestamp)
	if !s.election.Verify(announcement, s.nodes) {
		s.options.logger.Warn("leader announcement rejected",
			"leader_id", announcement.LeaderID,
			"sim_time", now)
		s.vacate()
		return
	}

	var (
		changed  = s.leader == nil || s.leader.ID != winner.ID
		newTerm  = changed || s.lastElection != timestamp
		previous NodeID
	)
	if s.leader != nil {
		previous = s.leader.ID
	}

	s.leader = winner
	s.lastElection = timestamp
	s.sink.Emit(Event{Type: EventElectionSucceeded, Time: timestamp, Leader: winner.ID})

	if newTerm {
		for _, n := range s.nodes {
			n.SetLeader(winner.ID, timestamp)
		}
	}
	if changed {
		s.sink.Emit(Event{
			Type:   EventLeaderChanged,
			Time:   timestamp,
			Leader: winner.ID,
			Node:   previous,
		})
	}
}

// vacate drops the leader from the election, the scheduler and every node's cached view.
func (s *Scheduler) vacate() {
	s.election.Vacate()
	s.leader = nil
	for _, n := range s.nodes {
		n.ClearLeader()
	}
}

// TriggerRebalancing tries direct-neighbour rebalancing for every requesting node and
// falls back to multi-hop paths. A success clears the node's request.
func (s *Scheduler) TriggerRebalancing(now time.Duration) {
	for _, n := range s.nodes {
		if !n.RebalancingRequested {
			continue
		}

		if s.rebalanceDirect(n, now) || s.rebalanceMultiHop(n, now) {
			n.ClearRebalancingRequest()
		}
	}
}

// rebalanceDirect tries one-hop transfers on the node's most skewed channels first.
func (s *Scheduler) rebalanceDirect(n *Node, now time.Duration) bool {
	var candidates = make([]*Channel, 0)
	for _, ch := range n.Channels() {
		if ch.Skewness() > s.options.skewnessTrigger {
			candidates = append(candidates, ch)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Skewness() > candidates[j].Skewness()
	})

	for _, ch := range candidates {
		var path, amount = s.directTransfer(n.ID, ch)
		if amount <= 0 {
			continue
		}
		if s.attempt(n, path, amount, now) {
			return true
		}
	}
	return false
}

// directTransfer moves liquidity from the fuller side toward the middle of the band,
// keeping both sides inside [floor, 1-floor] of capacity.
func (s *Scheduler) directTransfer(id NodeID, ch *Channel) (Path, float64) {
	var (
		floor = s.options.minLiquidityRatio * ch.Capacity
		path  = Path{id, ch.PeerID}
		high  = ch.LocalBalance
		low   = ch.RemoteBalance
	)
	if ch.LocalBalance < ch.RemoteBalance {
		path = Path{ch.PeerID, id}
		high, low = low, high
	}

	var amount = math.Min(high-floor, ch.Capacity-floor-low)
	amount = math.Min(amount, (high-low)/2)
	return path, amount
}

// rebalanceMultiHop discovers paths toward complementary nodes and executes the first
// trial amount that validates and improves skewness.
func (s *Scheduler) rebalanceMultiHop(n *Node, now time.Duration) bool {
	var paths = s.discoverPaths(n)
	if len(paths) == 0 {
		s.options.logger.Debug("no multi-hop candidates",
			"node_id", n.ID,
			"sim_time", now)
		return false
	}

	for _, path := range s.rankPaths(n.ID, paths) {
		var oriented = s.orientPath(path)
		for _, amount := range s.options.trialAmounts {
			if !s.engine.ValidatePath(oriented, amount) {
				continue
			}
			if s.engine.CalculateImprovement(oriented, amount) <= 0 {
				continue
			}
			if s.attempt(n, oriented, amount, now) {
				return true
			}
		}
	}
	return false
}

// rankPaths orders paths by the scorer's descending score. Paths the scorer does not
// return are dropped; without a scorer or scores the discovery order is kept.
func (s *Scheduler) rankPaths(source NodeID, paths []Path) []Path {
	if s.options.scorer == nil {
		return paths
	}
	var scored = s.options.scorer.ScorePaths(source, paths)
	if len(scored) == 0 {
		return paths
	}

	var known = make(map[string]bool, len(paths))
	for _, p := range paths {
		known[p.String()] = true
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	var ranked = make([]Path, 0, len(scored))
	for _, sp := range scored {
		var key = sp.Path.String()
		if !known[key] {
			continue
		}
		known[key] = false
		ranked = append(ranked, sp.Path)
	}
	return ranked
}

// attempt executes a transfer on behalf of requester and reports the outcome as events.
func (s *Scheduler) attempt(requester *Node, path Path, amount float64, now time.Duration) bool {
	var leader NodeID
	if s.leader != nil {
		leader = s.leader.ID
	}
	var event = Event{
		Type:   EventRebalancingAttempted,
		Time:   now,
		Leader: leader,
		Node:   requester.ID,
		Path:   path,
		Amount: amount,
	}
	s.sink.Emit(event)

	var improvement, err = s.engine.ExecuteTransfer(path, amount)
	if err != nil {
		event.Type = EventRebalancingFailed
		event.Reason = failureReason(err)
		s.sink.Emit(event)
		return false
	}

	event.Type = EventRebalancingSucceeded
	event.Improvement = improvement
	s.sink.Emit(event)
	return true
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrTransferAborted):
		return "aborted"
	case errors.Is(err, ErrPathInvalid):
		return "invalid_path"
	default:
		return err.Error()
	}
}

func (s *Scheduler) pendingRequests() int {
	var count int
	for _, n := range s.nodes {
		if n.RebalancingRequested {
			count++
		}
	}
	return count
}
