package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/npc-cif/internal/agents"
	"github.com/talgya/npc-cif/internal/api"
	"github.com/talgya/npc-cif/internal/config"
	"github.com/talgya/npc-cif/internal/engine"
	"github.com/talgya/npc-cif/internal/metrics"
)

func newNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Build a new population and save it",
		Long: `Build a population from the configuration directory and save it to
the database, replacing any saved simulation only with --force.

Examples:
  cifsim new                  # Build from ./configs
  cifsim new -n 20 --seed 7   # Override size and seed
  cifsim new --force          # Replace an existing simulation`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("agents") {
				cfg.Settings.N, _ = cmd.Flags().GetInt("agents")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Settings.Seed, _ = cmd.Flags().GetInt64("seed")
			}
			force, _ := cmd.Flags().GetBool("force")

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			exists, err := db.HasSimulation()
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already holds a simulation (use --force to replace it)", cfg.Settings.DBPath)
			}

			names, err := agents.NewSpawner(cfg.Settings.Seed).Names(cfg.Settings.N)
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(cfg.Settings.Seed))
			sim, err := engine.Build(cfg.ToBuildConfig(names), rng)
			if err != nil {
				return err
			}
			goals, err := furnish(cfg, sim, rng)
			if err != nil {
				return err
			}
			if err := db.SaveSimulation(sim); err != nil {
				return fmt.Errorf("save simulation: %w", err)
			}
			if err := db.SaveMeta(metaSeed, strconv.FormatInt(cfg.Settings.Seed, 10)); err != nil {
				return fmt.Errorf("save seed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Built %s agents holding %s beliefs and %s goals with %d exchange templates (run %s)\n",
				humanize.Comma(int64(len(sim.Agents))), humanize.Comma(int64(sim.Stats.BeliefsHeld)),
				humanize.Comma(int64(goals)), len(sim.Templates), sim.RunID)
			return nil
		},
	}
	cmd.Flags().IntP("agents", "n", 0, "Number of agents (overrides config)")
	cmd.Flags().Int64("seed", 0, "Random seed (overrides config)")
	cmd.Flags().Bool("force", false, "Replace an existing simulation")
	return cmd
}

// furnish gives every agent the configured relation preferences and
// goals_per_agent random goals. It returns the number of goals added.
func furnish(cfg *config.Config, sim *engine.Simulation, rng *rand.Rand) (int, error) {
	goals := 0
	for _, a := range sim.Agents {
		if err := a.SetRelationPreferences(cfg.Settings.Preferences); err != nil {
			return 0, err
		}
		a.AddRandomGoals(sim.Agents, sim.Vocabulary.Relationships, cfg.Settings.GoalsPerAgent, rng)
		goals += len(a.Goals)
	}
	return goals, nil
}

func newStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Advance the saved simulation",
		Long: `Advance the saved simulation by a number of ticks and save it.

Examples:
  cifsim step               # Advance by the configured tick count
  cifsim step --ticks 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, sim, err := loadSimulation(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			ticks := cfg.Settings.Ticks
			if cmd.Flags().Changed("ticks") {
				ticks, _ = cmd.Flags().GetInt("ticks")
			}
			if ticks < 1 {
				return fmt.Errorf("ticks must be at least 1")
			}

			start := time.Now()
			accepted, rejected := 0, 0
			for range ticks {
				if _, err := sim.Step(tickRNG(cfg.Settings.Seed, sim.LastTick)); err != nil {
					return err
				}
				accepted += sim.Stats.Accepted
				rejected += sim.Stats.Rejected
			}
			if err := db.SaveSimulation(sim); err != nil {
				return fmt.Errorf("save simulation: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd, map[string]any{
					"tick":     sim.LastTick,
					"accepted": accepted,
					"rejected": rejected,
					"log":      len(sim.Log),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tick %s: %s accepted, %s rejected in %s (log holds %s exchanges)\n",
				humanize.Comma(int64(sim.LastTick)), humanize.Comma(int64(accepted)), humanize.Comma(int64(rejected)),
				time.Since(start).Round(time.Millisecond), humanize.Comma(int64(len(sim.Log))))
			return nil
		},
	}
	cmd.Flags().Int("ticks", 0, "Ticks to advance (default from config)")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation on a clock and serve the HTTP API",
		Long: `Run the saved simulation on a wall clock, serving the HTTP API until
interrupted or until --ticks ticks have run. The simulation is saved every
--save-every ticks and on exit.

Examples:
  cifsim run                          # Run forever, one tick per second
  cifsim run --ticks 500 --interval 10ms
  CIFSIM_ADMIN_KEY=secret cifsim run  # Enable POST endpoints`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, sim, err := loadSimulation(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			ticks, _ := cmd.Flags().GetUint64("ticks")
			interval, _ := cmd.Flags().GetDuration("interval")
			saveEvery, _ := cmd.Flags().GetUint64("save-every")
			if cmd.Flags().Changed("port") {
				cfg.Settings.APIPort, _ = cmd.Flags().GetInt("port")
			}

			sim.Metrics = metrics.NewRecorder()
			sim.Metrics.SetAgents(len(sim.Agents))

			eng := engine.NewEngine()
			eng.Tick = sim.LastTick
			eng.Interval = interval
			eng.MaxTicks = ticks

			srv := &api.Server{
				Sim:      sim,
				Eng:      eng,
				DB:       db,
				RNG:      tickRNG(cfg.Settings.Seed, sim.LastTick),
				Port:     cfg.Settings.APIPort,
				AdminKey: cfg.Settings.AdminKey,
			}

			eng.OnTick = func(tick uint64) error {
				if _, err := srv.Advance(1); err != nil {
					return err
				}
				if saveEvery > 0 && tick%saveEvery == 0 {
					var saveErr error
					srv.View(func(sim *engine.Simulation) { saveErr = db.SaveSimulation(sim) })
					if saveErr != nil {
						slog.Error("periodic save failed", "tick", tick, "error", saveErr)
					}
				}
				return nil
			}

			if cfg.Settings.APIPort > 0 {
				httpSrv := srv.Start()
				defer func() {
					if err := api.Shutdown(httpSrv); err != nil {
						slog.Error("HTTP shutdown failed", "error", err)
					}
				}()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runErr := eng.Run(ctx)

			var saveErr error
			srv.View(func(sim *engine.Simulation) { saveErr = db.SaveSimulation(sim) })
			if runErr != nil {
				return runErr
			}
			if saveErr != nil {
				return fmt.Errorf("save simulation: %w", saveErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped at tick %s with %s logged exchanges\n",
				humanize.Comma(int64(sim.LastTick)), humanize.Comma(int64(len(sim.Log))))
			return nil
		},
	}
	cmd.Flags().Uint64("ticks", 0, "Stop after this many ticks (0 runs until interrupted)")
	cmd.Flags().Duration("interval", time.Second, "Wall-clock time per tick")
	cmd.Flags().Uint64("save-every", 100, "Save every N ticks (0 saves only on exit)")
	cmd.Flags().Int("port", 0, "HTTP API port (overrides config; 0 disables)")
	return cmd
}
