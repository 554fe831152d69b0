package debal

import "math"

// Monitor is the per-node liquidity decision policy. It has no side effects;
// the caller decides whether to flag the node.
type Monitor struct {
	theta   float64
	tau     float64
	epsilon float64
}

// NewMonitor creates a liquidity monitor. It reads theta, tau and epsilon from the options.
func NewMonitor(opts ...Option) *Monitor {
	var o = buildOptions(opts)
	return &Monitor{
		theta:   o.theta,
		tau:     o.tau,
		epsilon: o.epsilon,
	}
}

// TimeToDepletion projects how long the node's outgoing liquidity lasts at the current net outflow.
// A non-positive net outflow is clamped to epsilon, which yields a very large value.
func (m *Monitor) TimeToDepletion(n *Node, rates TrafficRates) float64 {
	var netFlow = math.Max(rates.Outgoing-rates.Incoming, m.epsilon)
	return n.TotalOutgoingLiquidity() / netFlow
}

// ViolatesBalanceRatio reports whether any channel has either side below theta of capacity.
func (m *Monitor) ViolatesBalanceRatio(n *Node) bool {
	for _, ch := range n.Channels() {
		var (
			localRatio  = ch.LocalBalance / ch.Capacity
			remoteRatio = ch.RemoteBalance / ch.Capacity
		)
		if math.Min(localRatio, remoteRatio) < m.theta {
			return true
		}
	}
	return false
}

// ShouldRequestRebalancing combines the balance-ratio and depletion signals.
func (m *Monitor) ShouldRequestRebalancing(n *Node, rates TrafficRates) bool {
	if m.ViolatesBalanceRatio(n) {
		return true
	}
	return m.TimeToDepletion(n, rates) < m.tau
}
