package debal

import (
	"fmt"
	"log/slog"
	"math"
)

// Engine validates and executes multi-hop transfers. Execution is all-or-nothing.
type Engine struct {
	nodes             map[NodeID]*Node
	sigma             float64
	minLiquidityRatio float64
	logger            *slog.Logger

	// beforeHop runs before each hop is applied; tests use it to mutate balances mid-transfer.
	beforeHop func(hop int)
}

// hopSnapshot records both channel views of a hop before it was applied.
type hopSnapshot struct {
	from, to              NodeID
	fromLocal, fromRemote float64
	toLocal, toRemote     float64
}

// NewEngine creates an engine over nodes. It reads sigma and the minimum-liquidity floor from the options.
func NewEngine(nodes []*Node, opts ...Option) *Engine {
	var o = buildOptions(opts)
	var e = &Engine{
		nodes:             make(map[NodeID]*Node, len(nodes)),
		sigma:             o.sigma,
		minLiquidityRatio: o.minLiquidityRatio,
		logger:            o.logger,
	}
	for _, n := range nodes {
		e.nodes[n.ID] = n
	}
	return e
}

// Register makes a node known to the engine.
func (e *Engine) Register(n *Node) {
	e.nodes[n.ID] = n
}

// ValidatePath reports whether amount can be moved along path.
//
// Every hop (u,v) needs a channel u->v with u.local >= amount; after the transfer both
// sides must keep the minimum-liquidity floor, and the new skewness must be <= sigma or
// strictly better than before.
func (e *Engine) ValidatePath(path Path, amount float64) bool {
	return e.checkPath(path, amount) == nil
}

func (e *Engine) checkPath(path Path, amount float64) error {
	if len(path) < 2 {
		return fmt.Errorf("%w: need at least two nodes, got %d", ErrPathInvalid, len(path))
	}
	if path.hasRepeats() {
		return fmt.Errorf("%w: %s repeats a node", ErrPathInvalid, path)
	}
	if !(amount > 0) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: amount %g must be positive and finite", ErrPathInvalid, amount)
	}

	for i := 0; i < len(path)-1; i++ {
		if err := e.checkHop(path[i], path[i+1], amount); err != nil {
			return err
		}
	}
	return nil
}

// checkHop validates one hop against the sender's current view.
func (e *Engine) checkHop(from, to NodeID, amount float64) error {
	var u, ok = e.nodes[from]
	if !ok {
		return fmt.Errorf("%w: %w: %s", ErrPathInvalid, ErrUnknownNode, from)
	}
	if _, ok := e.nodes[to]; !ok {
		return fmt.Errorf("%w: %w: %s", ErrPathInvalid, ErrUnknownNode, to)
	}

	var ch, exists = u.Channel(to)
	if !exists {
		return fmt.Errorf("%w: %w: %s -> %s", ErrPathInvalid, ErrUnknownChannel, from, to)
	}

	if ch.LocalBalance < amount {
		return fmt.Errorf("%w: %s -> %s local %g below amount %g", ErrPathInvalid, from, to, ch.LocalBalance, amount)
	}

	var (
		newLocal  = ch.LocalBalance - amount
		newRemote = ch.RemoteBalance + amount
		floor     = e.minLiquidityRatio * ch.Capacity
	)
	if newLocal < floor || newRemote < floor {
		return fmt.Errorf("%w: %s -> %s would drop below %g floor", ErrPathInvalid, from, to, floor)
	}

	var (
		currentSkew = ch.Skewness()
		newSkew     = skewness(newLocal, newRemote, ch.Capacity)
	)
	if newSkew > e.sigma && newSkew >= currentSkew {
		return fmt.Errorf("%w: %s -> %s skewness %.3f exceeds %.3f without improving", ErrPathInvalid, from, to, newSkew, e.sigma)
	}

	return nil
}

// ExecuteTransfer moves amount along path and returns the skewness improvement.
//
// ErrPathInvalid means no balance was touched. ErrTransferAborted means a hop failed
// during execution and every applied hop was reverted.
func (e *Engine) ExecuteTransfer(path Path, amount float64) (float64, error) {
	if err := e.checkPath(path, amount); err != nil {
		return 0, err
	}

	var (
		improvement = e.improvement(path, amount)
		applied     = make([]hopSnapshot, 0, len(path)-1)
	)
	for i := 0; i < len(path)-1; i++ {
		if e.beforeHop != nil {
			e.beforeHop(i)
		}

		var snapshot, err = e.applyHop(path[i], path[i+1], amount)
		if err != nil {
			e.rollback(applied)
			e.logger.Warn("transfer aborted, applied hops reverted",
				"path", path.String(),
				"amount", amount,
				"hop", i,
				"error", err)
			return 0, fmt.Errorf("%w: hop %d: %w", ErrTransferAborted, i, err)
		}
		applied = append(applied, snapshot)
	}

	return improvement, nil
}

// applyHop re-validates a hop and applies the four-way mirrored update.
func (e *Engine) applyHop(from, to NodeID, amount float64) (hopSnapshot, error) {
	if err := e.checkHop(from, to, amount); err != nil {
		return hopSnapshot{}, err
	}

	var (
		u     = e.nodes[from]
		v     = e.nodes[to]
		ch, _ = u.Channel(to)
	)
	var mirror, ok = v.Channel(from)
	if !ok {
		return hopSnapshot{}, fmt.Errorf("%w: mirror %s -> %s", ErrUnknownChannel, to, from)
	}

	var snapshot = hopSnapshot{
		from:       from,
		to:         to,
		fromLocal:  ch.LocalBalance,
		fromRemote: ch.RemoteBalance,
		toLocal:    mirror.LocalBalance,
		toRemote:   mirror.RemoteBalance,
	}

	if err := u.UpdateBalances(to, -amount, amount); err != nil {
		return hopSnapshot{}, err
	}
	if err := v.UpdateBalances(from, amount, -amount); err != nil {
		u.restoreBalances(to, snapshot.fromLocal, snapshot.fromRemote)
		return hopSnapshot{}, err
	}

	return snapshot, nil
}

// rollback reverts applied hops in reverse order.
func (e *Engine) rollback(applied []hopSnapshot) {
	for i := len(applied) - 1; i >= 0; i-- {
		var s = applied[i]
		e.nodes[s.from].restoreBalances(s.to, s.fromLocal, s.fromRemote)
		e.nodes[s.to].restoreBalances(s.from, s.toLocal, s.toRemote)
	}
}

// CalculateImprovement returns the summed per-hop skewness before minus after moving amount.
// It is a ranking score; an invalid path scores 0.
func (e *Engine) CalculateImprovement(path Path, amount float64) float64 {
	if e.checkPath(path, amount) != nil {
		return 0
	}
	return e.improvement(path, amount)
}

func (e *Engine) improvement(path Path, amount float64) float64 {
	var before, after float64
	for i := 0; i < len(path)-1; i++ {
		var ch, _ = e.nodes[path[i]].Channel(path[i+1])
		before += ch.Skewness()
		after += skewness(ch.LocalBalance-amount, ch.RemoteBalance+amount, ch.Capacity)
	}
	return before - after
}
