package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/forge"
	"github.com/forgelink/relay/internal/gitops"
)

// handleRepositoryFetch resolves an arbitrary repository page URL to the
// canonical clone URL.
func handleRepositoryFetch(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			URL string `json:"url"`
		}
		if !bindJSON(c, &req) {
			return
		}
		owner, name, err := s.forge.GetOwnerRepoFromURL(req.URL)
		if err != nil {
			writeError(c, err)
			return
		}
		info, err := s.forge.GetRepository(c.Request.Context(), owner, name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"repository_url": info.HTMLURL})
	}
}

// handleRepositoryInfo describes a repository on the local forge. Peers call
// it when mirroring one of our repositories.
func handleRepositoryInfo(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RepositoryURL string `json:"repository_url"`
		}
		if !bindJSON(c, &req) {
			return
		}
		owner, name, err := s.forge.GetOwnerRepoFromURL(req.RepositoryURL)
		if err != nil {
			writeError(c, err)
			return
		}
		info, err := s.forge.GetRepository(c.Request.Context(), owner, name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"name":        info.Name,
			"owner":       info.Owner,
			"description": info.Description,
		})
	}
}

// handleForkLocal forks a repository on the local forge into the
// administered account.
func handleForkLocal(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RepositoryURL string `json:"repository_url"`
		}
		if !bindJSON(c, &req) {
			return
		}
		owner, name, err := s.forge.GetOwnerRepoFromURL(req.RepositoryURL)
		if err != nil {
			writeError(c, err)
			return
		}
		if _, err := s.engine.Fork(c.Request.Context(), owner, name); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	}
}

// handleForkForeign mirrors a repository living on a peer's forge: create an
// empty repository under the administered account, then push the foreign
// default branch into it.
func handleForkForeign(s *server) gin.HandlerFunc {
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
		info, err := s.peers.GetRepositoryInfo(ctx, req.InterfaceURL, req.RepositoryURL)
		if err != nil {
			writeError(c, err)
			return
		}

		local := forge.LocalRepoName(req.RepositoryURL)
		if err := s.forge.CreateRepository(ctx, local, info.Description); err != nil && !fault.IsConflict(err) {
			writeError(c, err)
			return
		}
		mirror, err := s.forge.GetRepository(ctx, s.forge.Username(), local)
		if err != nil {
			writeError(c, err)
			return
		}

		wc, err := s.git.InitRepo(ctx, mirror.HTMLURL, req.RepositoryURL)
		if err != nil {
			writeError(c, err)
			return
		}
		if err := s.git.Mirror(ctx, wc); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	}
}

// handleCreatePull replays a federated pull request against a repository on
// the local forge: fork it, announce the patch on the target issue, commit
// the patch under its original author, and open the pull request from the
// administered fork.
func handleCreatePull(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RepositoryURL string `json:"repository_url"`
			PrURL         string `json:"pr_url"`
			IssueURL      string `json:"issue_url"`
			Title         string `json:"title"`
			Message       string `json:"message"`
			Base          string `json:"base"`
			Patch         string `json:"patch"`
			AuthorName    string `json:"author_name"`
			AuthorEmail   string `json:"author_email"`
		}
		if !bindJSON(c, &req) {
			return
		}
		if req.RepositoryURL == "" || req.PrURL == "" || req.Title == "" ||
			req.Patch == "" || req.AuthorName == "" || req.AuthorEmail == "" {
			writeError(c, fault.InvalidPayload("missing mandatory fields"))
			return
		}

		ctx := c.Request.Context()
		owner, name, err := s.forge.GetOwnerRepoFromURL(req.RepositoryURL)
		if err != nil {
			writeError(c, err)
			return
		}

		forkName, err := s.engine.Fork(ctx, owner, name)
		if err != nil {
			writeError(c, err)
			return
		}
		forkInfo, err := s.forge.GetRepository(ctx, s.forge.Username(), forkName)
		if err != nil {
			writeError(c, err)
			return
		}

		if req.IssueURL != "" && req.Message != "" {
			comment := forge.CommentOnIssue{Owner: owner, Repo: name, IssueURL: req.IssueURL, Body: req.Message}
			if err := s.forge.CommentOnIssue(ctx, comment); err != nil {
				writeError(c, err)
				return
			}
		}

		wc, err := s.git.InitRepo(ctx, forkInfo.HTMLURL, req.RepositoryURL)
		if err != nil {
			writeError(c, err)
			return
		}
		if err := s.git.FetchUpstream(ctx, wc); err != nil {
			writeError(c, err)
			return
		}

		branch := forge.BranchName(req.PrURL)
		patch := gitops.Patch{AuthorName: req.AuthorName, AuthorEmail: req.AuthorEmail, Body: req.Patch}
		if err := s.git.ApplyPatch(ctx, wc, patch, branch); err != nil {
			writeError(c, err)
			return
		}
		if err := s.git.PushLocal(ctx, wc, branch); err != nil {
			writeError(c, err)
			return
		}

		base := req.Base
		if base == "" {
			if base, err = s.git.DefaultBranch(ctx, wc); err != nil {
				writeError(c, err)
				return
			}
		}
		htmlURL, err := s.forge.CreatePullRequest(ctx, forge.CreatePullrequest{
			Owner: owner,
			Repo:  name,
			Head:  fmt.Sprintf("%s:%s", s.forge.Username(), branch),
			Base:  base,
			Title: req.Title,
			Body:  req.Message,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"html_url": htmlURL})
	}
}
