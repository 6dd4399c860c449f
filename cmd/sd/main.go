package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stardock/internal/app"
	"stardock/internal/db"
	"stardock/internal/domain"
	"stardock/internal/engine"
	"stardock/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "sd",
	Short: "Stardock CLI",
	Long: `Stardock runs a tick-driven space trading world.
Core concepts:
- Workspace: a directory holding .stardock/ (the sqlite database), an optional stardock.yml and an optional .env.
- World: one galaxy of systems joined by lanes. Every tick the world runs events, the economy, danger, arrivals and missions in order.
- Markets: each station keeps supply and demand per good; prices follow the ratio and drift back toward the station's economy.
- Events: pirate raids, plagues and booms move through phases, bend the economy and raise danger, and can spread to neighbours.
- Ships and convoys: trade at a docked station, travel along lanes and pay duty or lose cargo on arrival.
- Missions: trade contracts and operational jobs (patrol, survey, bounty) posted from market gaps, events and danger.
- Journal: every change the world makes, view with 'sd log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		// .env never overrides variables already set in the environment
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STARDOCK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("player", "", "player name or id to act as (env STARDOCK_PLAYER)")
	flags.String("db-dialect", "sqlite", "database dialect: sqlite or postgres")
	flags.String("db-dsn", "", "postgres connection string")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "log as JSON")
	for _, name := range []string{"workspace", "json", "player", "db-dialect", "db-dsn", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(worldCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tickCmd())
	rootCmd.AddCommand(marketCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(playerCmd())
	rootCmd.AddCommand(shipCmd())
	rootCmd.AddCommand(moduleCmd())
	rootCmd.AddCommand(convoyCmd())
	rootCmd.AddCommand(tradeCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func openRuntime(ctx context.Context) (*app.Runtime, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Dialect:   viper.GetString("db-dialect"),
		DSN:       viper.GetString("db-dsn"),
		Logger:    app.NewLogger(os.Stderr, viper.GetString("log-level"), viper.GetBool("log-json")),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	if !rt.Initialized {
		return errors.New("world not initialized; run sd world init")
	}
	return fn(ctx, rt.Engine)
}

// withPlayer resolves --player by name first, then by id.
func withPlayer(ctx context.Context, fn func(context.Context, engine.Engine, domain.Player) error) error {
	ref := strings.TrimSpace(viper.GetString("player"))
	if ref == "" {
		return errors.New("no player selected; pass --player or run sd player use <name>")
	}
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		p, err := e.Repo.GetPlayerByName(ctx, ref)
		if errors.Is(err, repo.ErrNotFound) {
			p, err = e.Repo.GetPlayer(ctx, ref)
		}
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("unknown player %q", ref)
		}
		if err != nil {
			return err
		}
		return fn(ctx, e, p)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// render prints rows as a table, or the raw value with --json.
func render(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func shipRows(ships []domain.Ship) []table.Row {
	rows := make([]table.Row, 0, len(ships))
	for _, s := range ships {
		where := s.SystemID
		if s.Status == domain.ShipInTransit {
			where = fmt.Sprintf("%s -> %s (t%d)", s.SystemID, s.DestinationID, s.ArrivalTick)
		}
		cargo := make([]string, 0, len(s.Cargo))
		for _, c := range s.Cargo {
			cargo = append(cargo, fmt.Sprintf("%s:%d", c.GoodID, c.Quantity))
		}
		rows = append(rows, table.Row{
			s.ID, s.Name, s.Status, where,
			fmt.Sprintf("%d/%d", s.CargoUsed(), s.CargoMax),
			fmt.Sprintf("%d/%d", s.Hull, s.HullMax),
			s.ConvoyID, strings.Join(cargo, " "),
		})
	}
	return rows
}

var shipHeader = table.Row{"ID", "Name", "Status", "Where", "Cargo", "Hull", "Convoy", "Hold"}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
