package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/proctor/internal/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		port    int
		noSweep bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the abandonment sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *configPath, port, noSweep)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the abandonment sweeper in this process")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, noSweep bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if port <= 0 {
		port = a.cfg.Server.Port
	}
	a.log.Info("starting proctor",
		zap.String("version", Version),
		zap.Int("port", port),
		zap.String("claim_backend", a.cfg.Dispatch.ClaimBackend),
		zap.Strings("notify", a.notifier.Channels()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, server.StartOpts{
			Deps: server.Deps{
				Interviews:  a.interviews,
				Recorder:    a.recorder,
				Completer:   a.dispatcher,
				Evaluations: a.evaluations,
				Logger:      a.log.Named("http"),
			},
			Port: port,
			Out:  cmd.OutOrStdout(),
		})
	})
	if !noSweep {
		g.Go(func() error {
			return a.sweeper.Run(gctx, a.cfg.Lifecycle.SweepSchedule)
		})
	}
	err = g.Wait()
	cancel()
	return err
}
