package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stardock/internal/config"
	"stardock/internal/domain"
	"stardock/internal/engine"
	"stardock/internal/journal"
)

func worldCmd() *cobra.Command {
	w := &cobra.Command{Use: "world", Short: "Create and inspect the world"}
	w.AddCommand(worldInitCmd())
	w.AddCommand(worldShowCmd())
	return w
}

func worldInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the world and seed every market",
		Long:  "Reads stardock.yml from the workspace (or the built-in defaults) and stores it with the world. Later edits to the file do not affect an existing world.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			w, err := rt.Engine.InitWorld(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(w)
			}
			fmt.Printf("World %s created: %d systems, %d goods, seed %d\n",
				w.ID, len(rt.Engine.Config.Universe.Systems), len(rt.Engine.Config.Goods), w.Seed)
			return nil
		},
	}
}

func worldShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the clock, systems and danger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.World(ctx)
				if err != nil {
					return err
				}
				levels, err := e.Repo.DangerLevels(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"world": w, "danger": levels})
				}
				fmt.Printf("World %s at tick %d (seed %d)\n", w.ID, w.CurrentTick, w.Seed)
				var rows []table.Row
				for _, sys := range e.Galaxy.Systems() {
					gov := ""
					if g, ok := e.Config.GovernmentFor(sys); ok {
						gov = g.ID
					}
					var lanes []string
					for _, n := range e.Galaxy.Neighbors(sys.ID) {
						ticks, _ := e.Galaxy.TravelTicks(sys.ID, n.ID)
						lanes = append(lanes, fmt.Sprintf("%s(%d)", n.ID, ticks))
					}
					rows = append(rows, table.Row{sys.ID, sys.RegionID, sys.EconomyType, gov, fmt.Sprintf("%.2f", levels[sys.ID]), lanes})
				}
				return render(nil, table.Row{"System", "Region", "Economy", "Government", "Danger", "Lanes"}, rows)
			})
		},
	}
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect world config",
		Long:  "Config is the rulebook: catalogs of goods, systems, events and modules plus tuning for every engine. It is stored with the world at init; stardock.yml only seeds new worlds.",
	}
	c.AddCommand(configInitCmd())
	c.AddCommand(configShowCmd())
	c.AddCommand(configValidateCmd())
	return c
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default stardock.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; pass --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the config the world runs with",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			return printJSON(rt.Engine.Config)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate stardock.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func tickCmd() *cobra.Command {
	t := &cobra.Command{Use: "tick", Short: "Drive the world clock"}
	var n int
	adv := &cobra.Command{
		Use:   "advance",
		Short: "Advance one or more ticks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if n < 1 {
				return errors.New("--n must be at least 1")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reports, err := e.AdvanceTicks(ctx, n)
				if viper.GetBool("json") {
					if perr := printJSON(reports); perr != nil {
						return perr
					}
					return err
				}
				for _, r := range reports {
					fmt.Printf("tick %d: %d processors", r.Tick, len(r.Results))
					for _, f := range r.Failures {
						fmt.Printf(", %s failed: %s", f.Processor, f.Error)
					}
					fmt.Println()
				}
				return err
			})
		},
	}
	adv.Flags().IntVar(&n, "n", 1, "number of ticks")
	t.AddCommand(adv)
	return t
}

func marketCmd() *cobra.Command {
	m := &cobra.Command{Use: "market", Short: "Station markets"}
	var systemID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List prices at one system, or every system",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				quotes, err := e.Market(ctx, systemID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(quotes))
				for _, q := range quotes {
					rows = append(rows, table.Row{q.SystemID, q.GoodID, q.Supply, q.Demand, q.Price})
				}
				return render(quotes, table.Row{"System", "Good", "Supply", "Demand", "Price"}, rows)
			})
		},
	}
	list.Flags().StringVar(&systemID, "system", "", "system id")
	m.AddCommand(list)
	return m
}

func eventCmd() *cobra.Command {
	ev := &cobra.Command{Use: "event", Short: "World events"}
	ev.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.World(ctx)
				if err != nil {
					return err
				}
				events, err := e.Events(ctx)
				if err != nil {
					return err
				}
				sort.Slice(events, func(i, j int) bool { return events[i].StartTick < events[j].StartTick })
				rows := make([]table.Row, 0, len(events))
				for _, in := range events {
					left := in.PhaseStartTick + in.PhaseDuration - w.CurrentTick
					rows = append(rows, table.Row{in.ID, in.Type, in.SystemID, in.Phase, fmt.Sprintf("%.2f", in.Severity), left, in.SourceEventID})
				}
				return render(events, table.Row{"ID", "Type", "System", "Phase", "Severity", "Ticks left", "Spread from"}, rows)
			})
		},
	})
	return ev
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "World journal"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var entryType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var entries []domain.JournalEntry
				if entryType == "" && entityKind == "" && entityID == "" {
					tail, err := e.Journal.Tail(ctx, e.DB, n)
					if err != nil {
						return err
					}
					entries = tail
				} else {
					all, err := e.History(ctx, journal.Filter{Type: entryType, EntityKind: entityKind, EntityID: entityID})
					if err != nil {
						return err
					}
					if len(all) > n {
						all = all[len(all)-n:]
					}
					entries = all
				}
				rows := make([]table.Row, 0, len(entries))
				for _, en := range entries {
					rows = append(rows, table.Row{en.ID, en.Tick, en.Type, en.EntityKind + ":" + en.EntityID, en.ActorID, en.Payload})
				}
				return render(entries, table.Row{"ID", "Tick", "Type", "Entity", "Actor", "Payload"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&entryType, "type", "", "entry type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}
