package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopfloor/internal/dashboard"
	"github.com/zulandar/shopfloor/internal/reconcile"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves the task and job API with Prometheus metrics at /metrics.
Notifications are delivered to the configured sinks and, when
reconcile.enabled is set, open jobs are reconciled on the configured schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Shopfloor config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default: dashboard.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	a, err := newApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Dashboard.Port
	}

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

	if a.cfg.Reconcile.Enabled {
		sched, err := reconcile.New(a.engine, a.store, a.cfg.Reconcile.Schedule, a.log)
		if err != nil {
			return err
		}
		sched.CompletedWindow = a.cfg.Reconcile.CompletedWindow
		a.log.Info("reconcile scheduled", "schedule", a.cfg.Reconcile.Schedule)
		go sched.Run(ctx)
	}

	return dashboard.Start(ctx, dashboard.StartOpts{
		DB:      a.db,
		Engine:  a.engine,
		Metrics: a.metrics.Handler(),
		Logger:  a.log,
		Port:    port,
		Out:     cmd.OutOrStdout(),
	})
}
