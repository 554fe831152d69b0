package debal

import (
	"fmt"
	"math"
	"time"
)

// Channel is one node's view of a bilateral payment channel. The peer holds the mirror view.
type Channel struct {
	PeerID        NodeID
	LocalBalance  float64
	RemoteBalance float64
	Capacity      float64
	history       []BalanceSample
}

// BalanceRatio returns local/capacity.
func (c *Channel) BalanceRatio() float64 {
	return c.LocalBalance / c.Capacity
}

// Skewness returns |local - remote| / capacity, in [0,1].
func (c *Channel) Skewness() float64 {
	return skewness(c.LocalBalance, c.RemoteBalance, c.Capacity)
}

func skewness(local, remote, capacity float64) float64 {
	return math.Abs(local-remote) / capacity
}

// validBalances checks the capacity invariant for a prospective balance pair.
func validBalances(local, remote, capacity float64) bool {
	return local >= 0 && remote >= 0 && local+remote <= capacity
}

// Node owns its channel views exclusively. All balance mutation goes through its methods.
type Node struct {
	ID                   NodeID
	RebalancingRequested bool

	channels map[NodeID]*Channel
	peers    []NodeID // insertion order, keeps iteration deterministic
	clock    Clock

	leaderID          NodeID
	electionTimestamp time.Duration
	hasLeader         bool
}

// NewNode creates a node with no channels. The clock stamps balance history samples.
func NewNode(id NodeID, clock Clock) *Node {
	return &Node{
		ID:       id,
		channels: make(map[NodeID]*Channel),
		peers:    make([]NodeID, 0),
		clock:    clock,
	}
}

// AddChannel opens this node's view of a channel to peer.
// The history is seeded with the initial balances at time 0.
func (n *Node) AddChannel(peer NodeID, local, remote, capacity float64) error {
	if capacity <= 0 || !validBalances(local, remote, capacity) {
		return fmt.Errorf("%w: local=%g remote=%g capacity=%g", ErrInvalidChannel, local, remote, capacity)
	}
	if _, exists := n.channels[peer]; exists {
		return fmt.Errorf("%w: %s -> %s", ErrChannelExists, n.ID, peer)
	}

	n.channels[peer] = &Channel{
		PeerID:        peer,
		LocalBalance:  local,
		RemoteBalance: remote,
		Capacity:      capacity,
		history:       []BalanceSample{{Timestamp: 0, LocalBalance: local, RemoteBalance: remote}},
	}
	n.peers = append(n.peers, peer)
	return nil
}

// RemoveChannel drops the channel and its history. Removing an unknown peer is a no-op.
func (n *Node) RemoveChannel(peer NodeID) {
	if _, exists := n.channels[peer]; !exists {
		return
	}
	delete(n.channels, peer)
	for i, id := range n.peers {
		if id == peer {
			n.peers = append(n.peers[:i], n.peers[i+1:]...)
			break
		}
	}
}

// UpdateBalances applies both deltas atomically. On violation nothing changes.
func (n *Node) UpdateBalances(peer NodeID, deltaLocal, deltaRemote float64) error {
	var ch, ok = n.channels[peer]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrUnknownChannel, n.ID, peer)
	}

	var (
		newLocal  = ch.LocalBalance + deltaLocal
		newRemote = ch.RemoteBalance + deltaRemote
	)
	if !validBalances(newLocal, newRemote, ch.Capacity) {
		return fmt.Errorf("%w: %s -> %s local=%g remote=%g capacity=%g",
			ErrInvalidChannel, n.ID, peer, newLocal, newRemote, ch.Capacity)
	}

	n.setBalances(ch, newLocal, newRemote)
	return nil
}

// restoreBalances puts a channel back to a snapshot taken before a failed transfer.
func (n *Node) restoreBalances(peer NodeID, local, remote float64) {
	if ch, ok := n.channels[peer]; ok {
		n.setBalances(ch, local, remote)
	}
}

func (n *Node) setBalances(ch *Channel, local, remote float64) {
	ch.LocalBalance = local
	ch.RemoteBalance = remote
	ch.history = append(ch.history, BalanceSample{
		Timestamp:     n.clock.Now(),
		LocalBalance:  local,
		RemoteBalance: remote,
	})
}

// Channel returns the channel to peer.
func (n *Node) Channel(peer NodeID) (*Channel, bool) {
	var ch, ok = n.channels[peer]
	return ch, ok
}

// Channels returns all channels in the order they were added.
func (n *Node) Channels() []*Channel {
	var channels = make([]*Channel, 0, len(n.peers))
	for _, peer := range n.peers {
		channels = append(channels, n.channels[peer])
	}
	return channels
}

// Peers returns the peer ids in the order their channels were added.
func (n *Node) Peers() []NodeID {
	var peers = make([]NodeID, len(n.peers))
	copy(peers, n.peers)
	return peers
}

// History returns a copy of the balance history of the channel to peer.
func (n *Node) History(peer NodeID) []BalanceSample {
	var ch, ok = n.channels[peer]
	if !ok {
		return nil
	}
	var history = make([]BalanceSample, len(ch.history))
	copy(history, ch.history)
	return history
}

// BalanceRatio returns local/capacity for the channel to peer, or 0 if there is none.
func (n *Node) BalanceRatio(peer NodeID) float64 {
	if ch, ok := n.channels[peer]; ok {
		return ch.BalanceRatio()
	}
	return 0
}

// Skewness returns the skewness of the channel to peer, or 0 if there is none.
func (n *Node) Skewness(peer NodeID) float64 {
	if ch, ok := n.channels[peer]; ok {
		return ch.Skewness()
	}
	return 0
}

// TotalOutgoingLiquidity is the sum of local balances.
func (n *Node) TotalOutgoingLiquidity() float64 {
	var total float64
	for _, peer := range n.peers {
		total += n.channels[peer].LocalBalance
	}
	return total
}

// TotalIncomingLiquidity is the sum of remote balances.
func (n *Node) TotalIncomingLiquidity() float64 {
	var total float64
	for _, peer := range n.peers {
		total += n.channels[peer].RemoteBalance
	}
	return total
}

// OutgoingRatio is outgoing / (outgoing + incoming) liquidity, 0 for a node without balances.
func (n *Node) OutgoingRatio() float64 {
	var (
		out   = n.TotalOutgoingLiquidity()
		total = out + n.TotalIncomingLiquidity()
	)
	if total <= 0 {
		return 0
	}
	return out / total
}

// RequestRebalancing flags the node as needing help.
func (n *Node) RequestRebalancing() {
	n.RebalancingRequested = true
}

// ClearRebalancingRequest clears the flag after a successful rebalance.
func (n *Node) ClearRebalancingRequest() {
	n.RebalancingRequested = false
}

// SetLeader updates this node's cached view of the current leader.
func (n *Node) SetLeader(id NodeID, timestamp time.Duration) {
	n.leaderID = id
	n.electionTimestamp = timestamp
	n.hasLeader = true
}

// ClearLeader forgets the cached leader.
func (n *Node) ClearLeader() {
	n.leaderID = ""
	n.electionTimestamp = 0
	n.hasLeader = false
}

// Leader returns the cached leader id and election timestamp.
func (n *Node) Leader() (NodeID, time.Duration, bool) {
	return n.leaderID, n.electionTimestamp, n.hasLeader
}
