package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	debal "go-debal"
	"go-debal/metrics"

	"github.com/eiannone/keyboard"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	horizon     time.Duration
	reportEvery time.Duration
	deltaT      time.Duration
	kappa       float64
	theta       float64
	sigma       float64
	tau         float64
	seed        int64
	dbURL       string
	tableName   string
	metricsAddr string
	interactive bool
	verbose     bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "debalsim",
		Short: "A simulator for decentralized payment-channel rebalancing",
		Long: `Debalsim runs the DEBAL rebalancing protocol on a simulated payment-channel
network: nodes elect a leader by hash, and the leader drives direct and
multi-hop transfers that pull skewed channels back into balance.`,
	}

	var runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the four-node demo network",
		RunE:  runSimulation,
	}

	runCmd.Flags().DurationVar(&horizon, "horizon", time.Hour, "Simulated time to run for")
	runCmd.Flags().DurationVar(&reportEvery, "report-every", 10*time.Minute, "Simulated interval between network reports")
	runCmd.Flags().DurationVar(&deltaT, "delta-t", 600*time.Second, "Leader term length; the scheduler ticks every delta-t/10")
	runCmd.Flags().Float64Var(&kappa, "kappa", 0.5, "Minimum outgoing-balance ratio for leader eligibility")
	runCmd.Flags().Float64Var(&theta, "theta", 0.2, "Minimum imbalance ratio for leader eligibility")
	runCmd.Flags().Float64Var(&sigma, "sigma", 0.2, "Maximum allowed skewness after a transfer")
	runCmd.Flags().Float64Var(&tau, "tau", 2.0, "Time-to-depletion threshold for requesting rebalancing")
	runCmd.Flags().Int64Var(&seed, "seed", 1, "Seed for path discovery")
	runCmd.Flags().StringVar(&dbURL, "db", "", "PostgreSQL connection URL; empty disables persistence")
	runCmd.Flags().StringVar(&tableName, "table", "debal", "Table prefix for persisted events and samples")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9090")
	runCmd.Flags().BoolVar(&interactive, "interactive", false, "Step the simulation from the keyboard")
	runCmd.Flags().BoolVar(&verbose, "verbose", false, "Log per-candidate outcomes")

	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	if err := checkIntervals(deltaT, reportEvery); err != nil {
		return err
	}

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Logs go to stderr so they don't get cleared by status updates
	var level = slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var (
		clock        = debal.NewSimClock(0)
		network, err = buildDemoNetwork(clock)
	)
	if err != nil {
		return fmt.Errorf("failed to build demo network: %w", err)
	}

	var opts = []debal.Option{
		debal.WithTermLength(deltaT),
		debal.WithKappa(kappa),
		debal.WithTheta(theta),
		debal.WithSigma(sigma),
		debal.WithTau(tau),
		debal.WithSeed(seed),
		debal.WithTraffic(demoTraffic),
		debal.WithLogger(logger),
	}

	if metricsAddr != "" {
		metrics.Register(prometheus.DefaultRegisterer)
		opts = append(opts, debal.WithEventSink(metrics.Sink{}))

		var server = &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer server.Close()
		fmt.Printf("Serving metrics on %s/metrics\n", metricsAddr)
	}

	var store *debal.EventStore
	if dbURL != "" {
		fmt.Printf("Connecting to database...\n")
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}

		store, err = debal.NewEventStore(db, tableName, debal.WithLogger(logger))
		if err != nil {
			return err
		}
		opts = append(opts, debal.WithEventSink(store))
		fmt.Printf("Recording run %s\n", store.RunID())
	}

	var scheduler = debal.NewScheduler(network, opts...)

	if interactive {
		err = runInteractive(ctx, scheduler, network, clock)
	} else {
		err = runToHorizon(ctx, scheduler, network, clock)
	}
	if err != nil {
		return err
	}

	if store != nil {
		if err := store.SaveHistory(context.Background(), network.Nodes()); err != nil {
			return fmt.Errorf("failed to save history: %w", err)
		}
		fmt.Printf("✓ Saved run %s\n", store.RunID())
	}
	return nil
}

// checkIntervals rejects intervals that would never advance the simulated clock.
func checkIntervals(deltaT, reportEvery time.Duration) error {
	if deltaT/10 <= 0 {
		return fmt.Errorf("--delta-t must be at least 10ns, got %s", deltaT)
	}
	if reportEvery <= 0 {
		return fmt.Errorf("--report-every must be positive, got %s", reportEvery)
	}
	return nil
}

func runToHorizon(ctx context.Context, scheduler *debal.Scheduler, network *debal.Network, clock *debal.SimClock) error {
	fmt.Println(network.String())

	for clock.Now() < horizon {
		var next = min(clock.Now()+reportEvery, horizon)
		if err := scheduler.Run(ctx, next); err != nil {
			return err
		}
		fmt.Println(network.String())
	}
	return nil
}

func runInteractive(ctx context.Context, scheduler *debal.Scheduler, network *debal.Network, clock *debal.SimClock) error {
	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("failed to initialize keyboard: %w", err)
	}
	defer keyboard.Close()

	// Keyboard input channel
	var keyCh = make(chan rune)
	go func() {
		for {
			char, _, err := keyboard.GetKey()
			if err != nil {
				return
			}
			keyCh <- char
		}
	}()

	printStatus(network, clock)

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n\nInterrupted at %s\n", clock.Now())
			return nil
		case key := <-keyCh:
			switch key {
			case 's', 'S':
				if clock.Now() >= horizon {
					break
				}
				if err := scheduler.Step(ctx); err != nil {
					return err
				}
				printStatus(network, clock)
			case 'r', 'R':
				if err := scheduler.Run(ctx, horizon); err != nil {
					return err
				}
				printStatus(network, clock)
			case 'q', 'Q':
				fmt.Printf("\n\nStopping at %s\n", clock.Now())
				return nil
			}
		}
	}
}

func printStatus(network *debal.Network, clock *debal.SimClock) {
	fmt.Print("\033[2J\033[H") // Clear screen and move cursor to top
	fmt.Println(network.String())

	if clock.Now() >= horizon {
		fmt.Printf("\nReached horizon %s\n", horizon)
	}

	fmt.Printf("\nControls:\n")
	fmt.Printf("  [s] Step one tick\n")
	fmt.Printf("  [r] Run to horizon\n")
	fmt.Printf("  [q] Quit\n")
}
