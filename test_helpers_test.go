package debal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testChannel describes one mirrored channel: a holds localA, b holds localB.
type testChannel struct {
	a, b           NodeID
	localA, localB float64
	capacity       float64
}

// newTestNetwork creates a network on a fresh clock, adding nodes in order of first appearance.
func newTestNetwork(t *testing.T, channels ...testChannel) (*Network, *SimClock) {
	t.Helper()

	var (
		clock   = NewSimClock(0)
		network = NewNetwork(clock)
	)
	for _, ch := range channels {
		for _, id := range []NodeID{ch.a, ch.b} {
			_, err := network.AddNode(id)
			require.NoError(t, err)
		}
		require.NoError(t, network.OpenChannel(ch.a, ch.b, ch.localA, ch.localB, ch.capacity))
	}
	return network, clock
}

func mustNode(t *testing.T, network *Network, id NodeID) *Node {
	t.Helper()

	var n, ok = network.Node(id)
	require.True(t, ok, "node %s should exist", id)
	return n
}

func mustChannel(t *testing.T, n *Node, peer NodeID) Channel {
	t.Helper()

	var ch, ok = n.Channel(peer)
	require.True(t, ok, "channel %s -> %s should exist", n.ID, peer)
	return *ch
}

// recordingSink keeps every emitted event.
type recordingSink struct {
	events []Event
}

func (r *recordingSink) Emit(e Event) {
	r.events = append(r.events, e)
}

func (r *recordingSink) ofType(eventType EventType) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
