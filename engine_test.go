package debal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	var (
		newEngine = func(t *testing.T, local, remote float64) (*Engine, *Network) {
			var network, _ = newTestNetwork(t, testChannel{a: "node_a", b: "node_b", localA: local, localB: remote, capacity: 1000})
			return NewEngine(network.Nodes(), WithSigma(0.2)), network
		}
	)

	t.Run("should accept a transfer that balances the channel", func(t *testing.T) {
		// Arrange
		var sut, _ = newEngine(t, 600, 400)

		// Act & Assert
		assert.True(t, sut.ValidatePath(Path{"node_a", "node_b"}, 100))
	})

	t.Run("should reject a transfer that breaks the minimum-liquidity floor", func(t *testing.T) {
		// Arrange
		var sut, _ = newEngine(t, 600, 400)

		// Act & Assert
		assert.False(t, sut.ValidatePath(Path{"node_a", "node_b"}, 500))
	})

	t.Run("should reject a floor violation even when skewness improves", func(t *testing.T) {
		// Arrange
		var sut, _ = newEngine(t, 300, 0)

		// Act
		var err = sut.checkPath(Path{"node_a", "node_b"}, 150)

		// Assert
		assert.ErrorIs(t, err, ErrPathInvalid)
		assert.Contains(t, err.Error(), "floor")
	})

	t.Run("should reject a transfer that worsens skewness past sigma", func(t *testing.T) {
		// Arrange
		var sut, _ = newEngine(t, 500, 500)

		// Act & Assert
		assert.False(t, sut.ValidatePath(Path{"node_a", "node_b"}, 200))
	})

	t.Run("should accept a transfer that improves skewness still above sigma", func(t *testing.T) {
		// Arrange
		var sut, _ = newEngine(t, 900, 100)

		// Act & Assert
		assert.True(t, sut.ValidatePath(Path{"node_a", "node_b"}, 150))
	})

	t.Run("should reject a transfer larger than the sender's local balance", func(t *testing.T) {
		// Arrange
		var sut, _ = newEngine(t, 600, 400)

		// Act & Assert
		assert.False(t, sut.ValidatePath(Path{"node_b", "node_a"}, 450))
	})

	t.Run("should reject malformed paths", func(t *testing.T) {
		var cases = []struct {
			name   string
			path   Path
			amount float64
		}{
			{name: "single node", path: Path{"node_a"}, amount: 100},
			{name: "repeated node", path: Path{"node_a", "node_b", "node_a"}, amount: 100},
			{name: "zero amount", path: Path{"node_a", "node_b"}, amount: 0},
			{name: "NaN amount", path: Path{"node_a", "node_b"}, amount: math.NaN()},
			{name: "infinite amount", path: Path{"node_a", "node_b"}, amount: math.Inf(1)},
			{name: "unknown node", path: Path{"node_a", "node_z"}, amount: 100},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				// Arrange
				var sut, _ = newEngine(t, 600, 400)

				// Act
				var err = sut.checkPath(tc.path, tc.amount)

				// Assert
				assert.ErrorIs(t, err, ErrPathInvalid)
				assert.False(t, sut.ValidatePath(tc.path, tc.amount))
			})
		}
	})

	t.Run("should report a NaN amount as an invalid path without touching balances", func(t *testing.T) {
		// Arrange
		var sut, network = newEngine(t, 600, 400)

		// Act
		var _, err = sut.ExecuteTransfer(Path{"node_a", "node_b"}, math.NaN())

		// Assert
		assert.ErrorIs(t, err, ErrPathInvalid)
		assert.NotErrorIs(t, err, ErrTransferAborted)
		var ch = mustChannel(t, mustNode(t, network, "node_a"), "node_b")
		assert.Equal(t, 600.0, ch.LocalBalance)
		assert.Equal(t, 400.0, ch.RemoteBalance)
	})

	t.Run("should reject a hop without a channel", func(t *testing.T) {
		// Arrange
		var network, _ = newTestNetwork(t,
			testChannel{a: "node_a", b: "node_b", localA: 600, localB: 400, capacity: 1000},
			testChannel{a: "node_c", b: "node_b", localA: 600, localB: 400, capacity: 1000},
		)
		var sut = NewEngine(network.Nodes())

		// Act
		var err = sut.checkPath(Path{"node_a", "node_c"}, 100)

		// Assert
		assert.ErrorIs(t, err, ErrPathInvalid)
		assert.ErrorIs(t, err, ErrUnknownChannel)
	})
}

func TestExecuteTransfer(t *testing.T) {
	var (
		newChain = func(t *testing.T) (*Engine, *Network) {
			var network, _ = newTestNetwork(t,
				testChannel{a: "node_a", b: "node_b", localA: 600, localB: 400, capacity: 1000},
				testChannel{a: "node_b", b: "node_c", localA: 600, localB: 400, capacity: 1000},
			)
			return NewEngine(network.Nodes()), network
		}
	)

	t.Run("should move the amount end to end and conserve the intermediate", func(t *testing.T) {
		// Arrange
		var (
			sut, network = newChain(t)
			a            = mustNode(t, network, "node_a")
			b            = mustNode(t, network, "node_b")
			c            = mustNode(t, network, "node_c")
			bTotal       = b.TotalOutgoingLiquidity()
		)

		// Act
		var improvement, err = sut.ExecuteTransfer(Path{"node_a", "node_b", "node_c"}, 100)

		// Assert
		require.NoError(t, err)
		assert.InDelta(t, 0.4, improvement, 1e-9)
		assert.Equal(t, 500.0, mustChannel(t, a, "node_b").LocalBalance)
		assert.Equal(t, 500.0, mustChannel(t, c, "node_b").LocalBalance)
		assert.Equal(t, bTotal, b.TotalOutgoingLiquidity())
		assert.Equal(t, 500.0, mustChannel(t, b, "node_a").LocalBalance)
		assert.Equal(t, 500.0, mustChannel(t, b, "node_c").LocalBalance)
	})

	t.Run("should keep both channel views mirrored", func(t *testing.T) {
		// Arrange
		var (
			sut, network = newChain(t)
			a            = mustNode(t, network, "node_a")
			b            = mustNode(t, network, "node_b")
		)

		// Act
		var _, err = sut.ExecuteTransfer(Path{"node_a", "node_b"}, 100)

		// Assert
		require.NoError(t, err)
		var ab, ba = mustChannel(t, a, "node_b"), mustChannel(t, b, "node_a")
		assert.Equal(t, ab.LocalBalance, ba.RemoteBalance)
		assert.Equal(t, ab.RemoteBalance, ba.LocalBalance)
	})

	t.Run("should not touch any balance when validation fails", func(t *testing.T) {
		// Arrange
		var (
			sut, network = newChain(t)
			a            = mustNode(t, network, "node_a")
		)

		// Act
		var improvement, err = sut.ExecuteTransfer(Path{"node_a", "node_b", "node_c"}, 500)

		// Assert
		assert.ErrorIs(t, err, ErrPathInvalid)
		assert.Zero(t, improvement)
		assert.Equal(t, 600.0, mustChannel(t, a, "node_b").LocalBalance)
		assert.Len(t, a.History("node_b"), 1)
	})

	t.Run("should roll back applied hops when a later hop fails", func(t *testing.T) {
		// Arrange
		var (
			sut, network = newChain(t)
			a            = mustNode(t, network, "node_a")
			b            = mustNode(t, network, "node_b")
			c            = mustNode(t, network, "node_c")
		)
		sut.beforeHop = func(hop int) {
			if hop == 1 {
				require.NoError(t, b.UpdateBalances("node_c", -550, 550))
			}
		}

		// Act
		var _, err = sut.ExecuteTransfer(Path{"node_a", "node_b", "node_c"}, 100)

		// Assert
		assert.ErrorIs(t, err, ErrTransferAborted)
		assert.ErrorIs(t, err, ErrPathInvalid)
		assert.Equal(t, 600.0, mustChannel(t, a, "node_b").LocalBalance)
		assert.Equal(t, 400.0, mustChannel(t, a, "node_b").RemoteBalance)
		assert.Equal(t, 400.0, mustChannel(t, b, "node_a").LocalBalance)
		assert.Equal(t, 600.0, mustChannel(t, b, "node_a").RemoteBalance)
		assert.Equal(t, 400.0, mustChannel(t, c, "node_b").LocalBalance)
	})

	t.Run("should roll back when the receiver has no mirror view", func(t *testing.T) {
		// Arrange
		var (
			sut, network = newChain(t)
			a            = mustNode(t, network, "node_a")
			b            = mustNode(t, network, "node_b")
			c            = mustNode(t, network, "node_c")
		)
		c.RemoveChannel("node_b")

		// Act
		var _, err = sut.ExecuteTransfer(Path{"node_a", "node_b", "node_c"}, 100)

		// Assert
		assert.ErrorIs(t, err, ErrTransferAborted)
		assert.ErrorIs(t, err, ErrUnknownChannel)
		assert.Equal(t, 600.0, mustChannel(t, a, "node_b").LocalBalance)
		assert.Equal(t, 400.0, mustChannel(t, b, "node_a").LocalBalance)
		assert.Equal(t, 600.0, mustChannel(t, b, "node_c").LocalBalance)

		var history = a.History("node_b")
		require.Len(t, history, 3, "seed, applied hop, revert")
		assert.Equal(t, 500.0, history[1].LocalBalance)
		assert.Equal(t, 600.0, history[2].LocalBalance)
	})
}

func TestCalculateImprovement(t *testing.T) {
	t.Run("should score the summed skewness reduction", func(t *testing.T) {
		// Arrange
		var network, _ = newTestNetwork(t,
			testChannel{a: "node_a", b: "node_b", localA: 700, localB: 300, capacity: 1000},
			testChannel{a: "node_b", b: "node_c", localA: 600, localB: 400, capacity: 1000},
		)
		var sut = NewEngine(network.Nodes())

		// Act
		var score = sut.CalculateImprovement(Path{"node_a", "node_b", "node_c"}, 100)

		// Assert
		assert.InDelta(t, (0.4+0.2)-(0.2+0.0), score, 1e-9)
	})

	t.Run("should score an invalid path as zero", func(t *testing.T) {
		// Arrange
		var network, _ = newTestNetwork(t, testChannel{a: "node_a", b: "node_b", localA: 600, localB: 400, capacity: 1000})
		var sut = NewEngine(network.Nodes())

		// Act & Assert
		assert.Zero(t, sut.CalculateImprovement(Path{"node_a", "node_b"}, 500))
		assert.Zero(t, sut.CalculateImprovement(Path{"node_a"}, 100))
	})
}
