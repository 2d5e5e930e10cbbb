package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/forgelink/relay/internal/actor"
	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/peer"
)

func handleVersions() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"versions": peer.ProtocolVersions})
	}
}

func handleKey(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"key": s.keys.Public()})
	}
}

// handleStats reports entity counts. Counts are TTL-cached in the store, so
// figures may lag recent writes.
func handleStats(s *server) gin.HandlerFunc {
	type counter struct {
		name  string
		count func() (int64, error)
	}
	return func(c *gin.Context) {
		counters := []counter{
			{"users", s.store.CountUsers},
			{"repositories", s.store.CountRepositories},
			{"issues", s.store.CountIssues},
			{"comments", s.store.CountComments},
			{"interfaces", s.store.CountInterfaces},
		}
		stats := gin.H{}
		for _, ct := range counters {
			n, err := ct.count()
			if err != nil {
				writeError(c, err)
				return
			}
			stats[ct.name] = n
		}
		c.JSON(http.StatusOK, stats)
	}
}

// handleWebfinger resolves acct: resources scoped to this instance's domain
// into JRD documents pointing at the actor endpoints.
func handleWebfinger(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := c.Query("resource")
		if resource == "" {
			writeError(c, fault.InvalidPayload("resource query parameter is required"))
			return
		}
		h, err := actor.ParseResource(resource, s.cfg.Domain())
		if err != nil {
			writeError(c, err)
			return
		}
		jrd, err := s.lookupJRD(c.Request.Context(), h)
		if err != nil {
			writeError(c, err)
			return
		}
		data, err := json.Marshal(jrd)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, actor.JRDContentType, data)
	}
}

func (s *server) lookupJRD(ctx context.Context, h actor.Handle) (actor.JRD, error) {
	base := s.cfg.URL
	domain := s.cfg.Domain()
	switch h.Kind {
	case actor.KindUser:
		u, err := s.engine.GetUser(ctx, h.Username)
		if err != nil {
			return actor.JRD{}, err
		}
		return actor.UserJRD(base, domain, u), nil
	case actor.KindRepo:
		r, err := s.engine.GetRepo(ctx, h.Owner, h.Repo)
		if err != nil {
			return actor.JRD{}, err
		}
		return actor.RepoJRD(base, domain, h.Owner, r), nil
	default:
		r, err := s.engine.GetRepo(ctx, h.Owner, h.Repo)
		if err != nil {
			return actor.JRD{}, err
		}
		issue, err := s.engine.GetIssue(ctx, r, h.Owner, h.Number)
		if err != nil {
			return actor.JRD{}, err
		}
		if issue.Repository.ID == 0 {
			issue.Repository = *r
		}
		return actor.IssueJRD(base, domain, h.Owner, issue), nil
	}
}

func handleUserActor(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.engine.GetUser(c.Request.Context(), c.Param("username"))
		if err != nil {
			writeError(c, err)
			return
		}
		renderActor(c, actor.UserDocument(s.cfg.URL, u), u.ProfileURL)
	}
}

func handleRepoActor(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := actor.ParseHandle(c.Param("handle"))
		if err != nil {
			writeError(c, err)
			return
		}
		if h.Kind != actor.KindRepo {
			writeError(c, fault.InvalidPayload("not a repository handle"))
			return
		}
		r, err := s.engine.GetRepo(c.Request.Context(), h.Owner, h.Repo)
		if err != nil {
			writeError(c, err)
			return
		}
		renderActor(c, actor.RepoDocument(s.cfg.URL, h.Owner, r), r.HTMLURL)
	}
}

func handleIssueActor(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := actor.ParseHandle(c.Param("handle"))
		if err != nil {
			writeError(c, err)
			return
		}
		if h.Kind != actor.KindIssue && h.Kind != actor.KindPull {
			writeError(c, fault.InvalidPayload("not an issue handle"))
			return
		}
		ctx := c.Request.Context()
		r, err := s.engine.GetRepo(ctx, h.Owner, h.Repo)
		if err != nil {
			writeError(c, err)
			return
		}
		issue, err := s.engine.GetIssue(ctx, r, h.Owner, h.Number)
		if err != nil {
			writeError(c, err)
			return
		}
		if issue.Repository.ID == 0 {
			issue.Repository = *r
		}
		renderActor(c, actor.IssueDocument(s.cfg.URL, h.Owner, issue), issue.HTMLURL)
	}
}

// renderActor serves the ActivityPub document to clients asking for it and
// redirects everyone else to the forge's HTML page.
func renderActor(c *gin.Context, doc actor.Document, htmlURL string) {
	if !wantsActivityJSON(c) && htmlURL != "" {
		c.Redirect(http.StatusFound, htmlURL)
		return
	}
	data, err := json.Marshal(doc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, actor.ActivityContentType, data)
}

func wantsActivityJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/activity+json") ||
		strings.Contains(accept, "application/ld+json")
}
