package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgelink/relay/internal/config"
	"github.com/forgelink/relay/internal/db"
	"github.com/forgelink/relay/internal/engine"
	"github.com/forgelink/relay/internal/forge"
	"github.com/forgelink/relay/internal/forge/gitea"
	"github.com/forgelink/relay/internal/forge/github"
	"github.com/forgelink/relay/internal/gitops"
	"github.com/forgelink/relay/internal/keys"
	"github.com/forgelink/relay/internal/peer"
	"github.com/forgelink/relay/internal/resolver"
	"github.com/forgelink/relay/internal/scheduler"
	"github.com/forgelink/relay/internal/server"
	"github.com/forgelink/relay/internal/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		Long:  "Starts the HTTP server and the background poll loop that reconciles forge activity with peers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "forgelink.yaml", "path to Forgelink config file")
	return cmd
}

// relayStack is the fully wired relay, shared between serve and poll.
type relayStack struct {
	cfg      *config.Config
	store    *store.Store
	forge    forge.Forge
	git      *gitops.ExecGit
	peers    *peer.Client
	keys     *keys.KeyPair
	engine   *engine.Engine
	resolver *resolver.Resolver
}

func buildForge(cfg *config.Config) (forge.Forge, error) {
	switch cfg.Forge.Kind {
	case "gitea":
		return gitea.New(cfg.Forge)
	case "github":
		return github.New(cfg.Forge)
	}
	return nil, fmt.Errorf("unsupported forge kind %q", cfg.Forge.Kind)
}

func buildRelay(configPath string, out io.Writer) (*relayStack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Keys.PrivateKey == "" {
		return nil, fmt.Errorf("no signing key in %s; run `forgelink keygen` and set keys.private_key", configPath)
	}
	kp, err := keys.Load(cfg.Keys.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}

	conn, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(conn); err != nil {
		return nil, err
	}
	if err := db.SeedSelf(conn, cfg, kp.Public()); err != nil {
		return nil, err
	}

	f, err := buildForge(cfg)
	if err != nil {
		return nil, err
	}
	git, err := gitops.NewExecGit(cfg.Git.BaseDir, cfg.Forge.Username, cfg.Forge.AdminEmail)
	if err != nil {
		return nil, err
	}

	st := store.New(conn, 0)
	peers := peer.NewClient(cfg.URL, cfg.Forge.Timeout)
	logger := log.New(out, "engine ", log.LstdFlags)
	eng := engine.New(st, f, git, peers, cfg.URL, logger)

	return &relayStack{
		cfg:      cfg,
		store:    st,
		forge:    f,
		git:      git,
		peers:    peers,
		keys:     kp,
		engine:   eng,
		resolver: resolver.New(f),
	}, nil
}

func runServe(cmd *cobra.Command, configPath string) error {
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
		SelfURL:  relay.cfg.URL,
		Epoch:    epoch,
		Interval: relay.cfg.Scheduler.Interval,
		CronExpr: relay.cfg.Scheduler.Cron,
		Out:      out,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	return server.Start(ctx, server.StartOpts{
		Config:   relay.cfg,
		Store:    relay.store,
		Forge:    relay.forge,
		Engine:   relay.engine,
		Resolver: relay.resolver,
		Git:      relay.git,
		Peers:    relay.peers,
		Keys:     relay.keys,
		Out:      out,
	})
}
