package debal

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	// ErrInvalidNodeID is returned when a node id is empty or contains unsupported characters.
	ErrInvalidNodeID = errors.New("node id must be non-empty and contain only letters, numbers, '_', '-' or '.'")

	validNodeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
)

// Network is the set of simulated nodes, kept in creation order so every pass over it is deterministic.
type Network struct {
	clock Clock
	nodes []*Node
	index map[NodeID]*Node
}

// NodeState is a snapshot of one node for reporting.
type NodeState struct {
	LocalBalances        map[NodeID]float64
	RemoteBalances       map[NodeID]float64
	RebalancingRequested bool
}

// NetworkState is a point-in-time summary of the whole network.
type NetworkState struct {
	LeaderID        NodeID
	HasLeader       bool
	ElectionTime    time.Duration
	Nodes           map[NodeID]NodeState
	PendingRequests int
}

// NewNetwork creates an empty network whose nodes stamp history with clock.
func NewNetwork(clock Clock) *Network {
	return &Network{
		clock: clock,
		nodes: make([]*Node, 0),
		index: make(map[NodeID]*Node),
	}
}

// ValidateNodeID checks that id is usable as a node identifier.
func ValidateNodeID(id NodeID) error {
	if id == "" || !validNodeIDPattern.MatchString(string(id)) {
		return fmt.Errorf("%w: %q", ErrInvalidNodeID, id)
	}
	return nil
}

// AddNode creates a node. Adding an existing id returns the existing node.
func (nw *Network) AddNode(id NodeID) (*Node, error) {
	if err := ValidateNodeID(id); err != nil {
		return nil, err
	}
	if n, ok := nw.index[id]; ok {
		return n, nil
	}

	var n = NewNode(id, nw.clock)
	nw.nodes = append(nw.nodes, n)
	nw.index[id] = n
	return n, nil
}

// Node looks up a node by id.
func (nw *Network) Node(id NodeID) (*Node, bool) {
	var n, ok = nw.index[id]
	return n, ok
}

// Nodes returns the nodes in creation order.
func (nw *Network) Nodes() []*Node {
	var nodes = make([]*Node, len(nw.nodes))
	copy(nodes, nw.nodes)
	return nodes
}

// OpenChannel opens both views of a channel between a and b. b's view mirrors a's:
// b.local = localB, b.remote = localA. Either both views are created or neither.
func (nw *Network) OpenChannel(a, b NodeID, localA, localB, capacity float64) error {
	if a == b {
		return fmt.Errorf("%w: self channel on %s", ErrInvalidChannel, a)
	}

	var nodeA, okA = nw.index[a]
	if !okA {
		return fmt.Errorf("%w: %s", ErrUnknownNode, a)
	}
	var nodeB, okB = nw.index[b]
	if !okB {
		return fmt.Errorf("%w: %s", ErrUnknownNode, b)
	}

	if err := nodeA.AddChannel(b, localA, localB, capacity); err != nil {
		return fmt.Errorf("failed to open channel %s -> %s: %w", a, b, err)
	}
	if err := nodeB.AddChannel(a, localB, localA, capacity); err != nil {
		nodeA.RemoveChannel(b)
		return fmt.Errorf("failed to open channel %s -> %s: %w", b, a, err)
	}
	return nil
}

// CloseChannel removes both views of the channel between a and b, including history.
func (nw *Network) CloseChannel(a, b NodeID) {
	if nodeA, ok := nw.index[a]; ok {
		nodeA.RemoveChannel(b)
	}
	if nodeB, ok := nw.index[b]; ok {
		nodeB.RemoveChannel(a)
	}
}

// PendingRequests counts nodes with an outstanding rebalancing request.
func (nw *Network) PendingRequests() int {
	var count int
	for _, n := range nw.nodes {
		if n.RebalancingRequested {
			count++
		}
	}
	return count
}

// State captures balances and leader view. The leader is read from the first node's cache,
// which the scheduler keeps identical on every node.
func (nw *Network) State() NetworkState {
	var state = NetworkState{
		Nodes:           make(map[NodeID]NodeState, len(nw.nodes)),
		PendingRequests: nw.PendingRequests(),
	}
	if len(nw.nodes) > 0 {
		state.LeaderID, state.ElectionTime, state.HasLeader = nw.nodes[0].Leader()
	}

	for _, n := range nw.nodes {
		var ns = NodeState{
			LocalBalances:        make(map[NodeID]float64),
			RemoteBalances:       make(map[NodeID]float64),
			RebalancingRequested: n.RebalancingRequested,
		}
		for _, ch := range n.Channels() {
			ns.LocalBalances[ch.PeerID] = ch.LocalBalance
			ns.RemoteBalances[ch.PeerID] = ch.RemoteBalance
		}
		state.Nodes[n.ID] = ns
	}
	return state
}

// String returns a visual representation of the network state.
func (nw *Network) String() string {
	var (
		b      strings.Builder
		state  = nw.State()
		leader = "none"
	)
	if state.HasLeader {
		leader = fmt.Sprintf("%s (elected @%s)", state.LeaderID, state.ElectionTime)
	}

	b.WriteString(fmt.Sprintf("Network @%s | Nodes: %d | Pending Requests: %d\n",
		nw.clock.Now(), len(nw.nodes), state.PendingRequests))
	b.WriteString(fmt.Sprintf("Leader: %s\n", leader))

	if len(nw.nodes) == 0 {
		b.WriteString("\n[Empty Network]\n")
		return b.String()
	}

	b.WriteString("\nChannels (u→v)          local     remote    skew\n")
	b.WriteString("┌─────────────────────────────────────────────────────────────┐\n")
	for _, pair := range nw.channelPairs() {
		var ch, _ = nw.index[pair[0]].Channel(pair[1])
		b.WriteString(fmt.Sprintf("│ %-10s → %-10s  %8.1f  %8.1f  %5.2f\n",
			pair[0], pair[1], ch.LocalBalance, ch.RemoteBalance, ch.Skewness()))
	}
	b.WriteString("└─────────────────────────────────────────────────────────────┘\n")

	b.WriteString("\nNode Summary:\n")
	for _, n := range nw.nodes {
		var (
			marker     = " "
			requesting = ""
		)
		if state.HasLeader && n.ID == state.LeaderID {
			marker = "●"
		}
		if n.RebalancingRequested {
			requesting = "requesting"
		}
		b.WriteString(fmt.Sprintf("  %s %-12s  out ratio: %.2f  out: %8.1f  in: %8.1f  %s\n",
			marker, n.ID, n.OutgoingRatio(), n.TotalOutgoingLiquidity(), n.TotalIncomingLiquidity(), requesting))
	}

	return b.String()
}

// channelPairs lists each channel once, lower id first, sorted.
func (nw *Network) channelPairs() [][2]NodeID {
	var (
		seen  = make(map[[2]NodeID]bool)
		pairs = make([][2]NodeID, 0)
	)
	for _, n := range nw.nodes {
		for _, peer := range n.Peers() {
			var pair = [2]NodeID{n.ID, peer}
			if peer < n.ID {
				pair = [2]NodeID{peer, n.ID}
			}
			if _, ok := nw.index[pair[0]]; !ok {
				continue
			}
			if _, ok := nw.index[pair[0]].Channel(pair[1]); !ok || seen[pair] {
				continue
			}
			seen[pair] = true
			pairs = append(pairs, pair)
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}
