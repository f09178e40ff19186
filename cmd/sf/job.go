package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopfloor/internal/dashboard"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and repair jobs",
	}

	cmd.AddCommand(newJobShowCmd())
	cmd.AddCommand(newJobRecalcCmd())
	return cmd
}

func newJobShowCmd() *cobra.Command {
	var configPath, tenant string

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobShow(cmd, configPath, tenant, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Shopfloor config file")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (default: config tenant)")
	return cmd
}

func runJobShow(cmd *cobra.Command, configPath, tenant, jobID string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)
	if tenant == "" {
		tenant = cfg.Tenant
	}

	view, err := dashboard.JobProgress(gormDB, tenant, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	printJob(cmd.OutOrStdout(), view)
	return nil
}

func printJob(out io.Writer, v *dashboard.JobView) {
	fmt.Fprintf(out, "Job %s  %s\n", v.JobNumber, v.ID)
	if v.Customer != "" {
		fmt.Fprintf(out, "Customer: %s\n", v.Customer)
	}
	fmt.Fprintf(out, "Status:   %s\n", v.Status)
	fmt.Fprintf(out, "Stage:    %s\n", orDash(v.CurrentStage))
	fmt.Fprintf(out, "Progress: %d%% (%d/%d tasks completed)\n", v.Progress, v.Tasks.Completed, v.Tasks.Total)

	for _, p := range v.Parts {
		fmt.Fprintf(out, "\nPart %s  %s  stage %s\n", p.PartNumber, p.Status, orDash(p.CurrentStage))
		fmt.Fprintf(out, "  %-36s  %-20s  %-12s  %-11s  %s\n", "TASK", "NAME", "STAGE", "STATUS", "TIME")
		for _, t := range p.Tasks {
			fmt.Fprintf(out, "  %-36s  %-20s  %-12s  %-11s  %d/%d min\n",
				t.ID, truncate(t.Name, 20), truncate(t.Stage, 12), t.Status, t.ActualTime, t.EstimatedTime)
		}
	}
}

func newJobRecalcCmd() *cobra.Command {
	var configPath, tenant string

	cmd := &cobra.Command{
		Use:   "recalc <job-id>",
		Short: "Recompute a job's current stage",
		Long:  "Resolves the job's current stage from its in-progress tasks and writes it if it changed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobRecalc(cmd, configPath, tenant, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Shopfloor config file")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (default: config tenant)")
	return cmd
}

func runJobRecalc(cmd *cobra.Command, configPath, tenant, jobID string) error {
	a, err := newApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, err = a.tenant(tenant)
	if err != nil {
		return err
	}
	if err := a.engine.RecalculateJobStage(context.Background(), tenant, jobID); err != nil {
		return err
	}
	view, err := dashboard.JobProgress(a.db, tenant, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s stage: %s\n", view.JobNumber, orDash(view.CurrentStage))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
