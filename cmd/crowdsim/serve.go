package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/internal/observability"
	"github.com/lao-tseu-is-alive/go-crowd-avoidance/internal/stream"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a scenario in real time and stream snapshots over a websocket",
		Long: `Serve steps a scenario paced to wall time and pushes every snapshot, as
JSON, to the clients connected on /ws. /healthz reports the server state.
The server stops once the scenario has run all its steps.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := commandConfig(cmd, v)
			if err != nil {
				return err
			}
			return serveSimulation(cmd.Context(), cfg.Run, cfg.Serve, observability.GetLogger())
		},
	}

	keys := addSourceFlags(cmd.Flags())
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().Float64("speed", 1, "simulated seconds per wall second (0 runs unpaced)")
	keys["serve.addr"] = "addr"
	keys["serve.speed"] = "speed"
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return bindFlags(v, cmd.Flags(), keys)
	}
	return cmd
}

func serveSimulation(ctx context.Context, s runSettings, srv serveSettings, logger *zap.Logger) error {
	if srv.Speed < 0 {
		return errors.New("--speed must not be negative")
	}
	cfg, world, err := prepareWorld(s, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	hub := stream.NewHub(logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"run_id":  world.RunID(),
			"clients": hub.Clients(),
		})
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger.Info("streaming snapshots",
		zap.String("url", "ws://"+ln.Addr().String()+"/ws"),
		zap.Float64("speed", srv.Speed))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		runErr := stream.Run(gctx, world, hub, cfg.Steps, cfg.TimeStep, srv.Speed, logger)

		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}

		// An interrupt is a normal way to stop serving.
		if runErr != nil && ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
			logger.Info("interrupted", zap.Int("step", world.StepCount()))
			return nil
		}
		return runErr
	})
	return g.Wait()
}
