package server

import (
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

// server bundles the dependencies the handlers close over.
type server struct {
	cfg      *config.Config
	store    *store.Store
	forge    forge.Forge
	engine   *engine.Engine
	resolver *resolver.Resolver
	git      gitops.System
	peers    *peer.Client
	keys     *keys.KeyPair
}

// registerRoutes sets up all relay routes on the Gin router.
func registerRoutes(router *gin.Engine, s *server) {
	// Federation metadata.
	router.GET("/_ff/interface/versions", handleVersions())
	router.GET("/_ff/interface/key", handleKey(s))

	// Actor discovery and documents.
	router.GET("/.well-known/webfinger", handleWebfinger(s))
	router.GET("/.well-known/nodeinfo", handleNodeinfoIndex(s))
	router.GET("/.well-known/nodeinfo/2.0.json", handleNodeinfo(s))
	router.GET("/u/:username", handleUserActor(s))
	router.GET("/r/:handle", handleRepoActor(s))
	router.GET("/i/:handle", handleIssueActor(s))

	api := router.Group("/api/v1")
	api.GET("/stats", handleStats(s))
	api.POST("/notifications/events", handleEvents(s))
	api.POST("/notifications/subscribe", handleSubscribe(s))

	issues := api.Group("/issues")
	issues.POST("/create", handleCreateIssue(s))
	issues.POST("/comment", handleCommentOnIssue(s))

	repo := api.Group("/repository")
	repo.POST("/fetch", handleRepositoryFetch(s))
	repo.POST("/info", handleRepositoryInfo(s))
	repo.POST("/fork/local", handleForkLocal(s))
	repo.POST("/fork/foreign", handleForkForeign(s))
	repo.POST("/pull/create", handleCreatePull(s))
}
