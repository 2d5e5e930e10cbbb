package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgelink/relay/internal/config"
	"github.com/forgelink/relay/internal/db"
	"github.com/forgelink/relay/internal/keys"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the relay database",
		Long:  "Migrates all tables and seeds this instance's interface and checkpoint rows. Safe to run multiple times.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "forgelink.yaml", "path to Forgelink config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	conn, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(conn); err != nil {
		return err
	}
	fmt.Fprintln(out, "Migrated all tables")

	publicKey := ""
	if cfg.Keys.PrivateKey != "" {
		kp, err := keys.Load(cfg.Keys.PrivateKey)
		if err != nil {
			return fmt.Errorf("load signing key: %w", err)
		}
		publicKey = kp.Public()
	}
	if err := db.SeedSelf(conn, cfg, publicKey); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded interface %s\n", cfg.URL)
	return nil
}
