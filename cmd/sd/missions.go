package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stardock/internal/domain"
	"stardock/internal/engine"
	"stardock/internal/repo"
)

func missionCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "mission",
		Short: "Mission board",
		Long: `Missions are posted each tick from market gaps, live events and danger.
Lifecycle: available -> accepted -> in_progress (operational only) -> completed, or expired on deadline. Abandoning returns a mission to the board.
Trade missions are delivered at the destination; patrols and surveys complete after their duration; bounties fight on the next tick.`,
	}
	m.AddCommand(missionListCmd())
	m.AddCommand(missionActionCmd("accept", "Take a mission from the board", false))
	m.AddCommand(missionActionCmd("start", "Start an operational mission with a ship", true))
	m.AddCommand(missionActionCmd("deliver", "Deliver a trade mission's goods", true))
	m.AddCommand(missionActionCmd("abandon", "Give up an accepted mission", false))
	return m
}

func missionListCmd() *cobra.Command {
	var systemID string
	var statuses []string
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.MissionFilter{SystemID: systemID}
			for _, s := range statuses {
				f.Statuses = append(f.Statuses, domain.MissionStatus(s))
			}
			list := func(ctx context.Context, e engine.Engine) error {
				items, err := e.Missions(ctx, f)
				if err != nil {
					return err
				}
				sort.SliceStable(items, func(i, j int) bool { return items[i].DeadlineTick < items[j].DeadlineTick })
				rows := make([]table.Row, 0, len(items))
				for _, ms := range items {
					rows = append(rows, table.Row{ms.ID, ms.Kind, ms.Type, ms.Status, ms.SystemID, missionTarget(ms), ms.Reward, ms.DeadlineTick})
				}
				return render(items, table.Row{"ID", "Kind", "Type", "Status", "System", "Target", "Reward", "Deadline"}, rows)
			}
			if mine {
				return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
					f.PlayerID = pl.ID
					return list(ctx, e)
				})
			}
			if len(f.Statuses) == 0 {
				f.Statuses = []domain.MissionStatus{domain.MissionAvailable}
			}
			return withEngine(cmd.Context(), list)
		},
	}
	cmd.Flags().StringVar(&systemID, "system", "", "only missions posted at this system")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "statuses to include (default available)")
	cmd.Flags().BoolVar(&mine, "mine", false, "only the selected pilot's missions")
	return cmd
}

func missionTarget(ms domain.Mission) string {
	if ms.Kind == domain.MissionTrade {
		return fmt.Sprintf("%d %s -> %s", ms.Quantity, ms.GoodID, ms.DestinationID)
	}
	var reqs []string
	for stat, v := range ms.StatRequirements {
		reqs = append(reqs, fmt.Sprintf("%s>=%d", stat, v))
	}
	sort.Strings(reqs)
	target := strings.Join(reqs, " ")
	if ms.EnemyTier != "" {
		target = strings.TrimSpace(string(ms.EnemyTier) + " " + target)
	}
	return target
}

func missionActionCmd(action, short string, needsShip bool) *cobra.Command {
	use := action + " <mission-id>"
	if needsShip {
		use += " [ship-id]"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var shipID string
			if len(args) == 2 {
				if !needsShip {
					return fmt.Errorf("%s takes no ship id", action)
				}
				shipID = args[1]
			}
			return withPlayer(cmd.Context(), func(ctx context.Context, e engine.Engine, pl domain.Player) error {
				var (
					ms  domain.Mission
					err error
				)
				switch action {
				case "accept":
					ms, err = e.AcceptMission(ctx, pl.ID, args[0])
				case "start":
					ms, err = e.StartMission(ctx, pl.ID, args[0], shipID)
				case "deliver":
					ms, err = e.DeliverMission(ctx, pl.ID, args[0], shipID)
				case "abandon":
					ms, err = e.AbandonMission(ctx, pl.ID, args[0])
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ms)
				}
				fmt.Printf("Mission %s is %s\n", ms.ID, ms.Status)
				return nil
			})
		},
	}
}
