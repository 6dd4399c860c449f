package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stardock/internal/domain"
	"stardock/internal/engine"
	"stardock/internal/engine/auth"
	"stardock/internal/engine/trade"
)

func playerCmd() *cobra.Command {
	p := &cobra.Command{Use: "player", Short: "Manage pilots"}
	p.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a pilot with a starter ship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pl, ship, err := e.CreatePlayer(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"player": pl, "ship": ship})
				}
				fmt.Printf("Player %s (%s) docked at %s with %d credits\n", pl.Name, pl.ID, ship.SystemID, pl.Credits)
				return nil
			})
		},
	})
	p.AddCommand(&cobra.Command{
		Use:   "use <name>",
		Short: "Act as this pilot by default (writes STARDOCK_PLAYER to .env)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pl, err := e.Repo.GetPlayerByName(ctx, args[0])
				if err != nil {
					return fmt.Errorf("player %q: %w", args[0], err)
				}
				path := filepath.Join(viper.GetString("workspace"), ".env")
				if err := setEnvValue(path, "STARDOCK_PLAYER", pl.Name); err != nil {
					return err
				}
				fmt.Printf("Using player %s\n", pl.Name)
				return nil
			})
		},
	})
	p.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the selected pilot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				return printJSONOrTable(pl)
			})
		},
	})
	p.AddCommand(playerTokenCmd())
	return p
}

func playerTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for the selected pilot (needs STARDOCK_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				tok, err := auth.Tokens{Secret: viper.GetString("jwt-secret"), TTL: ttl}.Issue(pl.ID, pl.Name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": tok})
				}
				fmt.Println(tok)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	return cmd
}

func shipCmd() *cobra.Command {
	s := &cobra.Command{Use: "ship", Short: "Fly and maintain ships"}
	s.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the pilot's ships",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				ships, err := e.Ships(ctx, pl.ID)
				if err != nil {
					return err
				}
				return render(ships, shipHeader, shipRows(ships))
			})
		},
	})
	s.AddCommand(&cobra.Command{
		Use:   "navigate <ship-id> <destination>",
		Short: "Depart along a lane to a neighbouring system",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				ships, err := e.Navigate(ctx, engine.NavigateOptions{PlayerID: pl.ID, ShipID: args[0], Destination: args[1]})
				if err != nil {
					return err
				}
				return render(ships, shipHeader, shipRows(ships))
			})
		},
	})
	s.AddCommand(&cobra.Command{
		Use:   "repair <ship-id>",
		Short: "Buy back hull at the docked station",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				res, err := e.Repair(ctx, pl.ID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Repaired %d hull for %d credits (%d/%d)\n", res.Points, res.Cost, res.Ship.Hull, res.Ship.HullMax)
				return nil
			})
		},
	})
	return s
}

func moduleCmd() *cobra.Command {
	m := &cobra.Command{Use: "module", Short: "Fit ship modules"}
	m.AddCommand(&cobra.Command{
		Use:   "install <ship-id> <module-id>",
		Short: "Buy and fit a module",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				ship, err := e.InstallModule(ctx, pl.ID, args[0], args[1])
				if err != nil {
					return err
				}
				return render(ship, shipHeader, shipRows([]domain.Ship{ship}))
			})
		},
	})
	m.AddCommand(&cobra.Command{
		Use:   "remove <ship-id> <module-id>",
		Short: "Remove a module for a partial refund",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				ship, refund, err := e.RemoveModule(ctx, pl.ID, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"ship": ship, "refund": refund})
				}
				fmt.Printf("Refunded %d credits\n", refund)
				return nil
			})
		},
	})
	return m
}

func convoyCmd() *cobra.Command {
	c := &cobra.Command{Use: "convoy", Short: "Group ships that travel and trade together"}
	c.AddCommand(&cobra.Command{
		Use:   "create <ship-id> <ship-id>...",
		Short: "Form a convoy from ships docked at one system",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				cv, err := e.CreateConvoy(ctx, pl.ID, args)
				if err != nil {
					return err
				}
				return printConvoy(cv)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "join <convoy-id> <ship-id>",
		Short: "Add a ship to a convoy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				cv, err := e.JoinConvoy(ctx, pl.ID, args[0], args[1])
				if err != nil {
					return err
				}
				return printConvoy(cv)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "leave <ship-id>",
		Short: "Take a ship out of its convoy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				ship, err := e.LeaveConvoy(ctx, pl.ID, args[0])
				if err != nil {
					return err
				}
				return render(ship, shipHeader, shipRows([]domain.Ship{ship}))
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "navigate <convoy-id> <destination>",
		Short: "Depart with every ship in the convoy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				ships, err := e.Navigate(ctx, engine.NavigateOptions{PlayerID: pl.ID, ConvoyID: args[0], Destination: args[1]})
				if err != nil {
					return err
				}
				return render(ships, shipHeader, shipRows(ships))
			})
		},
	})
	return c
}

func printConvoy(cv domain.Convoy) error {
	if viper.GetBool("json") {
		return printJSON(cv)
	}
	fmt.Printf("Convoy %s: %s\n", cv.ID, strings.Join(cv.ShipIDs, ", "))
	return nil
}

func tradeCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "trade",
		Short: "Buy or sell at the docked station",
		Long:  "Pass a ship id, or --convoy to trade for a whole convoy. Convoy purchases fill members in order; sales draw from them in order.",
	}
	t.AddCommand(tradeActionCmd(trade.Buy))
	t.AddCommand(tradeActionCmd(trade.Sell))
	return t
}

func tradeActionCmd(action trade.Action) *cobra.Command {
	var convoyID string
	cmd := &cobra.Command{
		Use:   string(action) + " [ship-id] <good-id> <quantity>",
		Short: strings.ToUpper(string(action[:1])) + string(action[1:]) + " goods",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TradeOptions{Action: action, ConvoyID: convoyID}
			switch {
			case len(args) == 3 && convoyID == "":
				opts.ShipID = args[0]
				args = args[1:]
			case len(args) == 2 && convoyID != "":
			default:
				return errors.New("pass either a ship id or --convoy")
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity: %w", err)
			}
			opts.GoodID = args[0]
			opts.Quantity = qty
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				opts.PlayerID = pl.ID
				res, err := e.Trade(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				rows := make([]table.Row, 0, len(res.Allocations))
				for _, a := range res.Allocations {
					rows = append(rows, table.Row{a.ShipID, a.Quantity})
				}
				fmt.Printf("%s %d %s at %d each in %s, %d credits left\n", action, qty, opts.GoodID, res.UnitPrice, res.SystemID, res.Credits)
				if len(rows) > 1 {
					return render(nil, table.Row{"Ship", "Quantity"}, rows)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&convoyID, "convoy", "", "trade for a convoy instead of one ship")
	return cmd
}
