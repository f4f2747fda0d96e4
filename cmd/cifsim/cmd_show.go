package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/npc-cif/internal/agents"
	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/engine"
	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/persistence"
	"github.com/talgya/npc-cif/internal/predicate"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Inspect the saved simulation",
	}
	cmd.AddCommand(newShowAgentCmd(), newShowLogCmd())
	return cmd
}

func newShowAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent <id|name>",
		Short: "Show an agent's beliefs",
		Long: `Show an agent's beliefs about itself and the others.

Examples:
  cifsim show agent 3
  cifsim show agent "Astrid Vale"
  cifsim show agent 3 --about 5   # Only beliefs about agent 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, sim, err := loadSimulation(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			a := findAgent(sim, args[0])
			if a == nil {
				return fmt.Errorf("no agent %q", args[0])
			}

			store := a.Beliefs
			if about, _ := cmd.Flags().GetUint64("about"); about != 0 {
				store = a.Beliefs.About(predicate.AgentID(about))
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd, map[string]any{
					"id":          a.ID,
					"name":        a.Name,
					"beliefs":     store.Beliefs(),
					"preferences": a.Preferences,
					"goals":       a.Goals,
				})
			}
			printAgent(cmd.OutOrStdout(), sim, a, store.Beliefs())
			return nil
		},
	}
	cmd.Flags().Uint64("about", 0, "Only show beliefs about this agent id")
	return cmd
}

func findAgent(sim *engine.Simulation, ref string) *agents.Agent {
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return sim.Agent(predicate.AgentID(id))
	}
	return sim.AgentByName(ref)
}

func printAgent(w io.Writer, sim *engine.Simulation, a *agents.Agent, list []belief.Belief) {
	fmt.Fprintf(w, "%s (#%d), %s beliefs\n", a.Name, a.ID, humanize.Comma(int64(a.Beliefs.Len())))
	for _, g := range a.Goals {
		fmt.Fprintf(w, "  goal: %s\n", g)
	}

	name := func(id predicate.AgentID) string {
		if other := sim.Agent(id); other != nil {
			return other.Name
		}
		return fmt.Sprintf("#%d", id)
	}
	for _, b := range list {
		p := b.Predicate
		subject := name(p.Subject)
		if p.Template.IsSingle() {
			fmt.Fprintf(w, "  %-40s %s\n", fmt.Sprintf("%s is %s", subject, p.Template.Subtype), humanize.FtoaWithDigits(b.Probability, 3))
			continue
		}
		fmt.Fprintf(w, "  %-40s %s\n", fmt.Sprintf("%s %s %s", subject, p.Template.Subtype, name(p.Target)), humanize.FtoaWithDigits(b.Probability, 3))
	}
}

func newShowLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show logged exchanges",
		Long: `Show the most recent exchanges, or all exchanges between two agents.

Examples:
  cifsim show log --limit 20
  cifsim show log --between 1,4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, sim, err := loadSimulation(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			between, _ := cmd.Flags().GetString("between")

			log := sim.Log
			if between != "" {
				a, b, err := parsePair(between)
				if err != nil {
					return err
				}
				log = sim.ExchangesBetween(a, b)
			}
			if limit > 0 && len(log) > limit {
				log = log[len(log)-limit:]
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				type entry struct {
					Tick      uint64            `json:"tick"`
					Name      string            `json:"name"`
					Initiator predicate.AgentID `json:"initiator"`
					Responder predicate.AgentID `json:"responder"`
					Outcome   string            `json:"outcome"`
				}
				out := make([]entry, 0, len(log))
				for _, ex := range log {
					out = append(out, entry{ex.Tick, ex.Name(), ex.Initiator, ex.Responder, ex.Outcome().String()})
				}
				return writeJSON(cmd, out)
			}

			if len(log) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No exchanges logged.")
				return nil
			}
			for _, ex := range log {
				printExchange(cmd.OutOrStdout(), sim, ex)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 50, "Show at most this many entries (0 for all)")
	cmd.Flags().String("between", "", "Two agent ids, comma-separated")
	return cmd
}

func parsePair(s string) (predicate.AgentID, predicate.AgentID, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("--between wants two ids like 1,4")
	}
	a, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("--between: %w", err)
	}
	b, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("--between: %w", err)
	}
	return predicate.AgentID(a), predicate.AgentID(b), nil
}

func printExchange(w io.Writer, sim *engine.Simulation, ex *exchange.Exchange) {
	initiator, responder := sim.Agent(ex.Initiator), sim.Agent(ex.Responder)
	text := ex.Template.Text
	if text == "" {
		text = ex.Name()
	}
	fmt.Fprintf(w, "[%6d] %s %s %s: %s\n", ex.Tick, initiator.Name, text, responder.Name, ex.Outcome())
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the saved simulation to a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, sim, err := loadSimulation(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := persistence.SaveFile(args[0], sim); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported tick %s to %s\n", humanize.Comma(int64(sim.LastTick)), args[0])
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the saved simulation with a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			sim, err := persistence.LoadFile(args[0])
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.SaveSimulation(sim); err != nil {
				return fmt.Errorf("save simulation: %w", err)
			}
			if err := db.SaveMeta(metaSeed, strconv.FormatInt(cfg.Settings.Seed, 10)); err != nil {
				return fmt.Errorf("save seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported run %s at tick %s\n", sim.RunID, humanize.Comma(int64(sim.LastTick)))
			return nil
		},
	}
}
