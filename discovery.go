package debal

import (
	"math"

	"github.com/gammazero/deque"
)

// discoverPaths collects structurally diverse paths from source to nodes whose
// outgoing-liquidity ratio differs from source's by more than the imbalance threshold.
// Paths start at source; the caller orients them before trying amounts.
func (s *Scheduler) discoverPaths(source *Node) []Path {
	var paths = make([]Path, 0, s.options.maxPaths)

	for _, target := range s.nodes {
		if len(paths) >= s.options.maxPaths {
			break
		}
		if target.ID == source.ID || !hasComplementaryImbalance(source, target, s.options.imbalanceThreshold) {
			continue
		}

		for range s.options.pathsPerTarget {
			if len(paths) >= s.options.maxPaths {
				break
			}
			var path = s.findPath(source, target, paths)
			if path == nil {
				break
			}
			paths = append(paths, path)
		}
	}

	return paths
}

// hasComplementaryImbalance reports whether a and b sit on opposite sides of the liquidity spectrum.
// Nodes without any balance never qualify.
func hasComplementaryImbalance(a, b *Node, threshold float64) bool {
	if a.TotalOutgoingLiquidity()+a.TotalIncomingLiquidity() <= 0 {
		return false
	}
	if b.TotalOutgoingLiquidity()+b.TotalIncomingLiquidity() <= 0 {
		return false
	}
	return math.Abs(a.OutgoingRatio()-b.OutgoingRatio()) > threshold
}

// findPath runs a breadth-first search from source to target, at most maxHops long,
// skipping candidates that overlap too much with existing. Neighbour order is shuffled
// with the scheduler's seeded source so repeated searches explore different routes.
func (s *Scheduler) findPath(source, target *Node, existing []Path) Path {
	var (
		visited  = map[NodeID]bool{source.ID: true}
		frontier deque.Deque[Path]
	)
	frontier.PushBack(Path{source.ID})

	for frontier.Len() > 0 {
		var path = frontier.PopFront()
		if len(path)-1 >= s.options.maxHops {
			continue
		}

		var (
			last      = s.index[path[len(path)-1]]
			neighbors = last.Peers()
		)
		s.rng.Shuffle(len(neighbors), func(i, j int) {
			neighbors[i], neighbors[j] = neighbors[j], neighbors[i]
		})

		for _, id := range neighbors {
			if _, known := s.index[id]; !known || visited[id] {
				continue
			}

			var next = make(Path, len(path), len(path)+1)
			copy(next, path)
			next = append(next, id)

			if id == target.ID {
				if isDiversePath(next, existing) {
					return next
				}
				continue
			}

			visited[id] = true
			frontier.PushBack(next)
		}
	}

	return nil
}

// isDiversePath rejects a candidate sharing more than half of its nodes with any existing path.
func isDiversePath(candidate Path, existing []Path) bool {
	for _, other := range existing {
		var common int
		for _, id := range candidate {
			if other.Contains(id) {
				common++
			}
		}
		if float64(common) > float64(len(candidate))*0.5 {
			return false
		}
	}
	return true
}

// orientPath directs a discovered path from the endpoint with more outgoing liquidity
// to the one with less.
func (s *Scheduler) orientPath(path Path) Path {
	var (
		source, okS = s.index[path.Source()]
		target, okT = s.index[path.Target()]
	)
	if okS && okT && source.OutgoingRatio() < target.OutgoingRatio() {
		return path.Reverse()
	}
	return path
}
