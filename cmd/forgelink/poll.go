package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgelink/relay/internal/scheduler"
)

func newPollCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run one reconciliation pass",
		Long:  "Polls the forge for activity since the checkpoint, processes it, and exits. Useful for cron-driven deployments and debugging.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "forgelink.yaml", "path to Forgelink config file")
	return cmd
}

func runPoll(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	relay, err := buildRelay(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	epoch, err := time.Parse(time.RFC3339, relay.cfg.Scheduler.Epoch)
	if err != nil {
		return fmt.Errorf("parse scheduler epoch: %w", err)
	}
	sched, err := scheduler.New(relay.store, relay.forge, relay.resolver, relay.engine, scheduler.Config{
		SelfURL: relay.cfg.URL,
		Epoch:   epoch,
		Out:     out,
	})
	if err != nil {
		return err
	}

	if err := sched.RunOnce(cmd.Context()); err != nil {
		return err
	}

	checkpoint, err := relay.store.Checkpoint(relay.cfg.URL)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Poll complete, checkpoint at %s\n", checkpoint.Format(time.RFC3339))
	return nil
}
