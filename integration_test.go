package debal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration(t *testing.T) {
	var (
		newCtx = func() context.Context {
			return context.Background()
		}
		newRing = func(t *testing.T) *Network {
			var network, _ = newTestNetwork(t,
				testChannel{a: "node_0", b: "node_1", localA: 100, localB: 0, capacity: 100},
				testChannel{a: "node_1", b: "node_2", localA: 200, localB: 0, capacity: 200},
				testChannel{a: "node_2", b: "node_3", localA: 200, localB: 0, capacity: 200},
				testChannel{a: "node_3", b: "node_0", localA: 100, localB: 0, capacity: 100},
				testChannel{a: "node_1", b: "node_3", localA: 50, localB: 150, capacity: 200},
			)
			return network
		}
		traffic = StaticTraffic{
			"node_0": {Incoming: 50, Outgoing: 150},
			"node_1": {Incoming: 100, Outgoing: 50},
			"node_2": {Incoming: 200, Outgoing: 50},
			"node_3": {Incoming: 100, Outgoing: 200},
		}
	)

	t.Run("should keep every history sample within capacity", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var (
			network = newRing(t)
			sut     = NewScheduler(network, WithTraffic(traffic))
		)
		mustNode(t, network, "node_0").RequestRebalancing()
		mustNode(t, network, "node_2").RequestRebalancing()

		// Act
		err := sut.Run(newCtx(), 2*time.Hour)

		// Assert
		require.NoError(t, err)
		for _, n := range network.Nodes() {
			for _, ch := range n.Channels() {
				var history = n.History(ch.PeerID)
				require.NotEmpty(t, history)
				var last time.Duration
				for _, sample := range history {
					assert.GreaterOrEqual(t, sample.LocalBalance, 0.0)
					assert.GreaterOrEqual(t, sample.RemoteBalance, 0.0)
					assert.LessOrEqual(t, sample.LocalBalance+sample.RemoteBalance, ch.Capacity+1e-9)
					assert.GreaterOrEqual(t, sample.Timestamp, last, "history must be ordered")
					last = sample.Timestamp
				}
			}
		}
	})

	t.Run("should keep mirrored views and channel totals after rebalancing", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var (
			network = newRing(t)
			sink    = &recordingSink{}
			sut     = NewScheduler(network, WithTraffic(traffic), WithEventSink(sink))
			totals  = make(map[[2]NodeID]float64)
		)
		for _, n := range network.Nodes() {
			for _, ch := range n.Channels() {
				totals[[2]NodeID{n.ID, ch.PeerID}] = ch.LocalBalance + ch.RemoteBalance
			}
		}
		mustNode(t, network, "node_0").RequestRebalancing()
		mustNode(t, network, "node_2").RequestRebalancing()

		// Act
		err := sut.Run(newCtx(), 2*time.Hour)

		// Assert
		require.NoError(t, err)
		assert.NotEmpty(t, sink.ofType(EventRebalancingSucceeded), "the skewed ring should be rebalanced at least once")

		for _, n := range network.Nodes() {
			for _, ch := range n.Channels() {
				var mirror = mustChannel(t, mustNode(t, network, ch.PeerID), n.ID)
				assert.InDelta(t, ch.LocalBalance, mirror.RemoteBalance, 1e-9, "%s -> %s", n.ID, ch.PeerID)
				assert.InDelta(t, ch.RemoteBalance, mirror.LocalBalance, 1e-9, "%s -> %s", n.ID, ch.PeerID)
				assert.InDelta(t, totals[[2]NodeID{n.ID, ch.PeerID}], ch.LocalBalance+ch.RemoteBalance, 1e-9)
			}
		}
	})

	t.Run("should agree on the leader across all cached views", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var (
			network = newRing(t)
			sut     = NewScheduler(network, WithTraffic(traffic))
		)
		mustNode(t, network, "node_0").RequestRebalancing()

		// Act
		err := sut.Run(newCtx(), 30*time.Minute)

		// Assert
		require.NoError(t, err)
		var state = network.State()
		var leader, ok = sut.CurrentLeader()
		assert.Equal(t, ok, state.HasLeader)
		for _, n := range network.Nodes() {
			var id, ts, cached = n.Leader()
			assert.Equal(t, state.HasLeader, cached)
			assert.Equal(t, state.LeaderID, id)
			assert.Equal(t, state.ElectionTime, ts)
		}
		if ok {
			assert.Equal(t, leader.ID, state.LeaderID)
			assert.Equal(t, sut.Election().TermStart(), state.ElectionTime)
		}
	})
}
