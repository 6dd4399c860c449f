package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"stardock/internal/app"
	"stardock/internal/engine"
	"stardock/internal/engine/auth"
	"stardock/internal/server"
	"stardock/internal/txn"
)

var errServerClosed = errors.New("server closed")

func serveCmd() *cobra.Command {
	var addr, basePath string
	var tickInterval, tokenTTL time.Duration
	var manualTicks, devLogin bool
	var rateLimit float64
	var burst int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the world clock",
		Long: `Serves the JSON API under --base-path with OpenAPI at <base-path>/openapi.json and a live journal feed at <base-path>/feed.
The world advances every --tick-interval (default: the world's tick_rate in seconds). With --manual-ticks the clock only moves through POST <base-path>/world/tick.
STARDOCK_JWT_SECRET signs bearer tokens and is required.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := strings.TrimSpace(viper.GetString("jwt-secret"))
			if secret == "" {
				return errors.New("STARDOCK_JWT_SECRET is required")
			}
			logger := app.NewLogger(os.Stderr, viper.GetString("log-level"), viper.GetBool("log-json"))
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			if !rt.Initialized {
				return errors.New("world not initialized; run sd world init")
			}
			e := rt.Engine

			interval := tickInterval
			if interval <= 0 {
				w, err := e.World(cmd.Context())
				if err != nil {
					return err
				}
				interval = time.Duration(max(1, w.TickRate)) * time.Second
			}

			hub := server.NewHub(logger)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth: server.AuthConfig{
					Tokens:   auth.Tokens{Secret: secret, TTL: tokenTTL},
					DevLogin: devLogin,
					Logger:   logger,
				},
				Rate:        server.RateConfig{Rate: rateLimit, Burst: burst},
				Hub:         hub,
				ManualTicks: manualTicks,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				hub.Run(ctx)
				return nil
			})
			g.Go(func() error {
				return server.Relay(ctx, e, hub, 500*time.Millisecond)
			})
			if !manualTicks {
				g.Go(func() error {
					runClock(ctx, e, interval)
					return nil
				})
			}
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				logger.Info("serving", "addr", addr, "base_path", basePath, "manual_ticks", manualTicks, "tick_interval", interval)
				fmt.Printf("Serving stardock API on http://%s%s\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				// a closed listener must still stop the other goroutines
				return errServerClosed
			})
			if err := g.Wait(); err != nil && !errors.Is(err, errServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().DurationVar(&tickInterval, "tick-interval", 0, "time between ticks (default from world tick_rate)")
	cmd.Flags().BoolVar(&manualTicks, "manual-ticks", false, "do not run the clock; expose POST /world/tick")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "allow POST /auth/token by player name")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of issued tokens")
	cmd.Flags().Float64Var(&rateLimit, "rate", 20, "requests per second per caller, 0 to disable")
	cmd.Flags().IntVar(&burst, "burst", 40, "request burst per caller")
	return cmd
}

// runClock advances the world until ctx ends. A conflict means another
// writer moved the clock first; the next tick picks up from there.
func runClock(ctx context.Context, e engine.Engine, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		rep, err := e.AdvanceTick(ctx)
		switch {
		case err == nil:
			if len(rep.Failures) > 0 {
				e.Log.Warn("tick completed with failures", "tick", rep.Tick, "failures", rep.Failures)
			}
		case errors.Is(err, txn.ErrConflict):
			e.Log.Info("tick skipped", "err", err)
		case ctx.Err() != nil:
			return
		default:
			e.Log.Error("tick failed", "err", err)
		}
	}
}
