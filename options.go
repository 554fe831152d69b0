package debal

import (
	"io"
	"log/slog"
	"time"
)

// options configures elections, the engine, the monitor and the scheduler (internal only).
type options struct {
	kappa              float64
	theta              float64
	deltaT             time.Duration
	sigma              float64
	tau                float64
	epsilon            float64
	minLiquidityRatio  float64
	skewnessTrigger    float64
	imbalanceThreshold float64
	maxHops            int
	maxPaths           int
	pathsPerTarget     int
	trialAmounts       []float64
	seed               int64
	logger             *slog.Logger
	sink               EventSink
	scorer             PathScorer
	traffic            TrafficSource
}

// defaultOptions returns sensible defaults.
func defaultOptions() options {
	return options{
		kappa:              0.5,
		theta:              0.2,
		deltaT:             600 * time.Second,
		sigma:              0.2,
		tau:                2.0,
		epsilon:            0.001,
		minLiquidityRatio:  0.2,
		skewnessTrigger:    0.2,
		imbalanceThreshold: 0.2,
		maxHops:            5,
		maxPaths:           10,
		pathsPerTarget:     3,
		trialAmounts:       []float64{1000, 750, 500, 250, 100},
		seed:               1,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func buildOptions(opts []Option) options {
	var o = defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option is a functional option shared by NewElection, NewEngine, NewMonitor and NewScheduler.
type Option func(*options)

// WithKappa sets the minimum outgoing-balance ratio for leader eligibility.
func WithKappa(kappa float64) Option {
	return func(o *options) {
		o.kappa = kappa
	}
}

// WithTheta sets the minimum imbalance ratio for eligibility and the monitor's balance-ratio floor.
func WithTheta(theta float64) Option {
	return func(o *options) {
		o.theta = theta
	}
}

// WithTermLength sets delta_t, the leader term. The scheduler ticks every delta_t/10.
func WithTermLength(deltaT time.Duration) Option {
	return func(o *options) {
		o.deltaT = deltaT
	}
}

// WithSigma sets the maximum allowed skewness after a transfer.
func WithSigma(sigma float64) Option {
	return func(o *options) {
		o.sigma = sigma
	}
}

// WithTau sets the time-to-depletion threshold below which a node requests rebalancing.
func WithTau(tau float64) Option {
	return func(o *options) {
		o.tau = tau
	}
}

// WithMinLiquidityRatio sets the per-channel floor both sides must keep after a transfer.
func WithMinLiquidityRatio(ratio float64) Option {
	return func(o *options) {
		o.minLiquidityRatio = ratio
	}
}

// WithMaxHops caps the number of hops of a discovered multi-hop path.
func WithMaxHops(hops int) Option {
	return func(o *options) {
		o.maxHops = hops
	}
}

// WithMaxPaths caps the number of candidate paths collected per discovery round.
func WithMaxPaths(count int) Option {
	return func(o *options) {
		o.maxPaths = count
	}
}

// WithTrialAmounts sets the descending amounts tried on each multi-hop candidate.
func WithTrialAmounts(amounts ...float64) Option {
	return func(o *options) {
		o.trialAmounts = append([]float64(nil), amounts...)
	}
}

// WithSeed seeds neighbour shuffling during path discovery.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithLogger sets the logger.
// If the logger is nil, a no-op logger is used.
// DEFAULT: A no-op logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}

		o.logger = logger
	}
}

// WithEventSink adds an observability sink. Events are also logged.
func WithEventSink(sink EventSink) Option {
	return func(o *options) {
		if sink == nil {
			return
		}
		if o.sink == nil {
			o.sink = sink
			return
		}
		o.sink = MultiSink{o.sink, sink}
	}
}

// WithPathScorer sets the optional path-scoring oracle.
func WithPathScorer(scorer PathScorer) Option {
	return func(o *options) {
		o.scorer = scorer
	}
}

// WithTraffic sets the traffic source the scheduler feeds into the liquidity monitor.
func WithTraffic(traffic TrafficSource) Option {
	return func(o *options) {
		o.traffic = traffic
	}
}
