// Command analyze runs a scenario headless and prints a summary of the run:
// rounds executed, collisions, arrivals and why the simulation stopped. It
// can also list the bundled scenarios or write the built-in default scenario
// to a file as a starting point for new ones.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/traffic-sim/game/config"
	"github.com/wricardo/traffic-sim/game/driver"
	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/scheduler"
	"github.com/wricardo/traffic-sim/game/service"
	"gopkg.in/yaml.v3"
)

// StopInterrupted is reported when the run was cancelled before it finished
const StopInterrupted = "interrupted"

// Report summarises one headless run
type Report struct {
	Scenario       string        `json:"scenario"`
	Lanes          int           `json:"lanes"`
	Length         int           `json:"length"`
	Vehicles       int           `json:"vehicles"`
	Rounds         uint64        `json:"rounds"`
	Iterations     uint64        `json:"iterations"`
	Active         int           `json:"active"`
	Collisions     int           `json:"collisions"`
	UserCollisions int           `json:"user_collisions"`
	GoalsReached   int           `json:"goals_reached"`
	Released       int           `json:"released"`
	FailedSteps    int           `json:"failed_steps"`
	DroppedEvents  uint64        `json:"dropped_events"`
	StopReason     string        `json:"stop_reason"`
	Duration       time.Duration `json:"duration"`
	SlowestRound   time.Duration `json:"slowest_round"`
}

func (r *Report) tally(events []engine.Event) {
	for _, e := range events {
		switch e.Type {
		case engine.EventCollision:
			r.Collisions++
		case engine.EventUserCollision:
			r.UserCollisions++
		case engine.EventGoalReached:
			r.GoalsReached++
		case engine.EventReleased:
			r.Released++
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "run a traffic scenario headless and summarise the outcome",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scenario",
				Aliases: []string{"s"},
				Usage:   "scenario id from the config dir, or a path to a scenario file (default: built-in scenario)",
			},
			&cli.StringFlag{
				Name:    "config-dir",
				Value:   "configs",
				Usage:   "directory containing scenario files",
				Sources: cli.EnvVars("CONFIG_DIR"),
			},
			&cli.BoolFlag{
				Name:  "sequential",
				Usage: "step vehicles one after another instead of concurrently",
			},
			&cli.Uint64Flag{
				Name:  "iterations",
				Usage: "override the scenario's round limit",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "override the number of vehicles stepped concurrently",
				Validator: func(n int) error {
					if n < 0 {
						return fmt.Errorf("workers must not be negative, got %d", n)
					}
					return nil
				},
			},
			&cli.StringFlag{
				Name:  "generate-config",
				Usage: "write the built-in scenario to `FILE` (.json, .yaml or .yml) and exit",
			},
			&cli.BoolFlag{
				Name:  "list",
				Usage: "list the scenarios in the config dir and exit",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the report as JSON",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	out := cmd.Writer
	if out == nil {
		out = os.Stdout
	}

	if path := cmd.String("generate-config"); path != "" {
		if err := writeScenario(path, engine.DefaultScenario()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote default scenario to %s\n", path)
		return nil
	}

	if cmd.Bool("list") {
		return listScenarios(out, cmd.String("config-dir"))
	}

	scenario, err := resolveScenario(cmd.String("scenario"), cmd.String("config-dir"))
	if err != nil {
		return err
	}
	if cmd.IsSet("sequential") {
		scenario.Sequential = cmd.Bool("sequential")
	}
	if n := cmd.Uint64("iterations"); n > 0 {
		scenario.Iterations = n
	}
	if cmd.IsSet("workers") {
		scenario.Workers = cmd.Int("workers")
	}

	level := slog.LevelWarn
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	report, err := analyze(ctx, scenario, logger)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, report)
	return nil
}

// resolveScenario loads a scenario by file path or by id from dir. An empty
// name selects the built-in scenario.
func resolveScenario(name, dir string) (*engine.Scenario, error) {
	if name == "" {
		return engine.DefaultScenario(), nil
	}
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return engine.LoadScenario(name)
	}

	manager, err := config.NewManager(dir)
	if err != nil {
		return nil, err
	}
	scenario, err := manager.LoadScenario(name)
	if err != nil {
		return nil, err
	}
	// The manager caches scenarios; overrides must not leak into the cache
	copied := *scenario
	return &copied, nil
}

func listScenarios(out io.Writer, dir string) error {
	manager, err := config.NewManager(dir)
	if err != nil {
		return err
	}
	scenarios, err := manager.ListScenarios()
	if err != nil {
		return err
	}
	for _, s := range scenarios {
		fmt.Fprintf(out, "%-16s %-20s %2d lanes x %-5d %4d vehicles  %s\n",
			s.ScenarioID, s.Name, s.Lanes, s.Length, s.Vehicles, s.Description)
	}
	return nil
}

// analyze runs the scenario until it shuts down or ctx is cancelled
func analyze(ctx context.Context, scenario *engine.Scenario, logger *slog.Logger) (*Report, error) {
	sim, err := engine.NewSimulation(scenario, engine.Options{
		Decider: driver.Factory(driver.Config{Logger: logger}),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		Scenario: scenario.Name,
		Lanes:    scenario.Lanes,
		Length:   scenario.Length,
		Vehicles: scenario.VehicleCount(),
	}

	// Events are drained every round so the buffer never overflows
	sim.OnRound(func(r scheduler.Report) {
		report.tally(sim.DrainEvents())
		report.FailedSteps += r.Failed
		if r.Duration > report.SlowestRound {
			report.SlowestRound = r.Duration
		}
	})

	start := time.Now()
	runErr := sim.Run(ctx)
	report.Duration = time.Since(start)
	report.tally(sim.DrainEvents())

	state := sim.Snapshot()
	report.Rounds = state.Round
	report.Iterations = state.Iterations
	report.Active = state.Active
	report.DroppedEvents = state.DroppedEvents
	report.StopReason = service.StopReason(scenario, &state)
	if report.StopReason == "" && errors.Is(ctx.Err(), context.Canceled) {
		report.StopReason = StopInterrupted
	}

	if runErr != nil {
		return report, fmt.Errorf("simulation shutdown: %w", runErr)
	}
	return report, nil
}

func printReport(out io.Writer, r *Report) {
	fmt.Fprintf(out, "\n=== %s ===\n", r.Scenario)
	fmt.Fprintf(out, "Road: %d lanes x %d cells, %d vehicles\n", r.Lanes, r.Length, r.Vehicles)
	fmt.Fprintf(out, "Rounds: %d/%d in %s (slowest round %s)\n", r.Rounds, r.Iterations, r.Duration.Round(time.Microsecond), r.SlowestRound.Round(time.Microsecond))
	fmt.Fprintf(out, "Goals reached: %d, still active: %d\n", r.GoalsReached, r.Active)
	fmt.Fprintf(out, "Collisions: %d (user: %d)\n", r.Collisions+r.UserCollisions, r.UserCollisions)
	if r.FailedSteps > 0 {
		fmt.Fprintf(out, "⚠️  Failed vehicle steps: %d\n", r.FailedSteps)
	}
	if r.DroppedEvents > 0 {
		fmt.Fprintf(out, "⚠️  Dropped events: %d\n", r.DroppedEvents)
	}
	stop := r.StopReason
	if stop == "" {
		stop = "-"
	}
	fmt.Fprintf(out, "Stop reason: %s\n", stop)
}

// writeScenario encodes the scenario in the format implied by the path
func writeScenario(path string, s *engine.Scenario) error {
	var (
		data []byte
		err  error
	)
	if engine.FormatOf(path) == "yaml" {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode scenario: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}
	return nil
}
