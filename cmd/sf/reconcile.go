package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopfloor/internal/reconcile"
)

func newReconcileCmd() *cobra.Command {
	var configPath, tenant string

	cmd := &cobra.Command{
		Use:   "reconcile [job-id]",
		Short: "Re-derive part and job status from tasks",
		Long: `Rewrites part and job status, stage and completion time from the current
task rows, healing cascades that stopped part-way.

With a job id, reconciles that job. Without one, sweeps every open job of
every tenant.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runReconcileJob(cmd, configPath, tenant, args[0])
			}
			return runReconcileSweep(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Shopfloor config file")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (default: config tenant)")
	return cmd
}

func runReconcileJob(cmd *cobra.Command, configPath, tenant, jobID string) error {
	a, err := newApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, err = a.tenant(tenant)
	if err != nil {
		return err
	}
	n, err := a.engine.ReconcileJob(context.Background(), tenant, jobID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reconciled job %s: %d rows changed\n", jobID, n)
	return nil
}

func runReconcileSweep(cmd *cobra.Command, configPath string) error {
	a, err := newApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := reconcile.New(a.engine, a.store, a.cfg.Reconcile.Schedule, a.log)
	if err != nil {
		return err
	}
	sched.CompletedWindow = a.cfg.Reconcile.CompletedWindow
	rep, err := sched.Sweep(context.Background())
	fmt.Fprintf(cmd.OutOrStdout(), "Reconciled %d jobs across %d tenants: %d rows changed\n", rep.Jobs, rep.Tenants, rep.Rows)
	if err != nil {
		return fmt.Errorf("%d jobs failed: %w", rep.Failed, err)
	}
	return nil
}
