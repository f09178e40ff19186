package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Track work on tasks",
	}

	cmd.AddCommand(newTaskStartCmd())
	cmd.AddCommand(newTaskStopCmd())
	cmd.AddCommand(newTaskCompleteCmd())
	return cmd
}

type taskFlags struct {
	configPath string
	tenant     string
	operator   string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "path to Shopfloor config file")
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "tenant id (default: config tenant)")
	cmd.Flags().StringVarP(&f.operator, "operator", "o", "", "operator id")
}

func newTaskStartCmd() *cobra.Command {
	var f taskFlags

	cmd := &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start time tracking on a task",
		Long:  "Opens a time entry for the operator and moves the task, its part and its job to in_progress.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskStart(cmd, f, args[0])
		},
	}

	f.register(cmd)
	cmd.MarkFlagRequired("operator")
	return cmd
}

func runTaskStart(cmd *cobra.Command, f taskFlags, taskID string) error {
	a, err := newApp(cmd, f.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, err := a.tenant(f.tenant)
	if err != nil {
		return err
	}
	if err := a.engine.Start(context.Background(), tenant, taskID, f.operator); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Started task %s for operator %s\n", taskID, f.operator)
	return nil
}

func newTaskStopCmd() *cobra.Command {
	var f taskFlags

	cmd := &cobra.Command{
		Use:   "stop <task-id>",
		Short: "Stop time tracking on a task",
		Long:  "Closes the operator's running time entry and adds its minutes to the task's actual time.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskStop(cmd, f, args[0])
		},
	}

	f.register(cmd)
	cmd.MarkFlagRequired("operator")
	return cmd
}

func runTaskStop(cmd *cobra.Command, f taskFlags, taskID string) error {
	a, err := newApp(cmd, f.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, err := a.tenant(f.tenant)
	if err != nil {
		return err
	}
	entry, err := a.engine.Stop(context.Background(), tenant, taskID, f.operator)
	if err != nil {
		return err
	}
	minutes := 0
	if entry.Duration != nil {
		minutes = *entry.Duration
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stopped task %s: %d min logged\n", taskID, minutes)
	return nil
}

func newTaskCompleteCmd() *cobra.Command {
	var f taskFlags

	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Mark a task completed",
		Long:  "Completes the task and rolls the result up to its part and job. Fails while a timer is running.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskComplete(cmd, f, args[0])
		},
	}

	f.register(cmd)
	return cmd
}

func runTaskComplete(cmd *cobra.Command, f taskFlags, taskID string) error {
	a, err := newApp(cmd, f.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, err := a.tenant(f.tenant)
	if err != nil {
		return err
	}
	if err := a.engine.Complete(context.Background(), tenant, taskID, f.operator); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Completed task %s\n", taskID)
	return nil
}
