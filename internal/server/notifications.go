package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/models"
	"github.com/forgelink/relay/internal/peer"
)

// handleEvents receives a federated notification from a peer and runs it
// through the same resolve-and-run pipeline the poller uses.
func handleEvents(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev peer.Event
		if !bindJSON(c, &ev) {
			return
		}
		n, err := ev.Notification()
		if err != nil {
			writeError(c, err)
			return
		}
		event, err := s.resolver.Resolve(n)
		if err != nil {
			writeError(c, err)
			return
		}
		if err := s.engine.RunEvent(c.Request.Context(), event); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	}
}

// handleSubscribe registers a peer Interface for a repository's events. The
// peer must pass the version handshake before anything is persisted.
func handleSubscribe(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RepositoryURL string `json:"repository_url"`
			InterfaceURL  string `json:"interface_url"`
		}
		if !bindJSON(c, &req) {
			return
		}
		if req.RepositoryURL == "" || req.InterfaceURL == "" {
			writeError(c, fault.InvalidPayload("repository_url and interface_url are required"))
			return
		}

		ctx := c.Request.Context()
		key, err := s.peers.Handshake(ctx, req.InterfaceURL)
		if err != nil {
			writeError(c, err)
			return
		}

		owner, name, err := s.forge.GetOwnerRepoFromURL(req.RepositoryURL)
		if err != nil {
			writeError(c, err)
			return
		}
		repo, err := s.engine.GetRepo(ctx, owner, name)
		if err != nil {
			writeError(c, err)
			return
		}

		iface := models.Interface{URL: req.InterfaceURL, PublicKey: key}
		if err := s.store.SaveInterface(&iface); err != nil {
			writeError(c, err)
			return
		}
		if err := s.store.Subscribe(repo.ID, iface.ID); err != nil {
			writeError(c, err)
			return
		}
		if err := s.forge.Subscribe(ctx, owner, name); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	}
}
