package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopfloor/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update all tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Shopfloor config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables on %s\n", len(db.AllModels()), cfg.Database.Driver)
	return nil
}

func newDBSeedCmd() *cobra.Command {
	var (
		configPath string
		tenant     string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo tenant",
		Long:  "Creates a tenant with the default stage workflow, two operators and one demo job.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBSeed(cmd, configPath, tenant)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Shopfloor config file")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (default: config tenant, then \"demo\")")
	return cmd
}

func runDBSeed(cmd *cobra.Command, configPath, tenant string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)

	if tenant == "" {
		tenant = cfg.Tenant
	}
	if tenant == "" {
		tenant = "demo"
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	job, err := db.SeedDemo(gormDB, tenant)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Seeded tenant %s with job %s (%s)\n", tenant, job.JobNumber, job.ID)
	for _, p := range job.Parts {
		fmt.Fprintf(out, "  part %s\n", p.PartNumber)
		for _, t := range p.Tasks {
			fmt.Fprintf(out, "    %s  %s\n", t.ID, t.Name)
		}
	}
	return nil
}
