// Package server is the HTTP surface of the relay: the peer-facing
// federation endpoints, repository operations, webfinger discovery, and
// ForgeFed actor documents.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgelink/relay/internal/config"
	"github.com/forgelink/relay/internal/engine"
	"github.com/forgelink/relay/internal/forge"
	"github.com/forgelink/relay/internal/gitops"
	"github.com/forgelink/relay/internal/keys"
	"github.com/forgelink/relay/internal/peer"
	"github.com/forgelink/relay/internal/resolver"
	"github.com/forgelink/relay/internal/store"
)

// StartOpts holds configuration for the relay HTTP server.
type StartOpts struct {
	Config   *config.Config
	Store    *store.Store
	Forge    forge.Forge
	Engine   *engine.Engine
	Resolver *resolver.Resolver
	Git      gitops.System
	Peers    *peer.Client
	Keys     *keys.KeyPair
	Out      io.Writer
}

func (o StartOpts) validate() error {
	switch {
	case o.Config == nil:
		return fmt.Errorf("server: config is required")
	case o.Store == nil:
		return fmt.Errorf("server: store is required")
	case o.Forge == nil:
		return fmt.Errorf("server: forge is required")
	case o.Engine == nil:
		return fmt.Errorf("server: engine is required")
	case o.Resolver == nil:
		return fmt.Errorf("server: resolver is required")
	case o.Git == nil:
		return fmt.Errorf("server: git is required")
	case o.Peers == nil:
		return fmt.Errorf("server: peer client is required")
	case o.Keys == nil:
		return fmt.Errorf("server: keypair is required")
	}
	return nil
}

// Router builds the Gin engine with all routes registered. Separate from
// Start so tests can drive it through httptest.
func Router(opts StartOpts) (*gin.Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, &server{
		cfg:      opts.Config,
		store:    opts.Store,
		forge:    opts.Forge,
		engine:   opts.Engine,
		resolver: opts.Resolver,
		git:      opts.Git,
		peers:    opts.Peers,
		keys:     opts.Keys,
	})
	return router, nil
}

// Start launches the relay HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := Router(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", opts.Config.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Interface listening on %s\n", addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
