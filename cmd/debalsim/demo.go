package main

import (
	"fmt"

	debal "go-debal"
)

type demoChannel struct {
	a, b           debal.NodeID
	localA, localB float64
	capacity       float64
}

var (
	demoNodes = []debal.NodeID{"node_0", "node_1", "node_2", "node_3"}

	demoChannels = []demoChannel{
		{a: "node_0", b: "node_1", localA: 100, localB: 0, capacity: 100},
		{a: "node_1", b: "node_2", localA: 200, localB: 0, capacity: 200},
		{a: "node_2", b: "node_3", localA: 200, localB: 0, capacity: 200},
		{a: "node_3", b: "node_0", localA: 100, localB: 0, capacity: 100},
		{a: "node_1", b: "node_3", localA: 50, localB: 150, capacity: 200},
	}

	demoTraffic = debal.StaticTraffic{
		"node_0": {Incoming: 50, Outgoing: 150},
		"node_1": {Incoming: 100, Outgoing: 50},
		"node_2": {Incoming: 200, Outgoing: 50},
		"node_3": {Incoming: 100, Outgoing: 200},
	}

	demoRequesters = []debal.NodeID{"node_0", "node_2"}
)

// buildDemoNetwork creates the four-node ring with a chord between node_1 and node_3.
func buildDemoNetwork(clock debal.Clock) (*debal.Network, error) {
	var network = debal.NewNetwork(clock)

	for _, id := range demoNodes {
		if _, err := network.AddNode(id); err != nil {
			return nil, fmt.Errorf("failed to add node %s: %w", id, err)
		}
	}

	for _, ch := range demoChannels {
		if err := network.OpenChannel(ch.a, ch.b, ch.localA, ch.localB, ch.capacity); err != nil {
			return nil, err
		}
	}

	for _, id := range demoRequesters {
		var n, _ = network.Node(id)
		n.RequestRebalancing()
	}

	return network, nil
}
