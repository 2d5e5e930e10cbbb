package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/forge"
)

// handleCreateIssue opens an issue on a local-forge repository on behalf of
// the caller and returns its HTML URL.
func handleCreateIssue(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RepositoryURL string `json:"repository_url"`
			Title         string `json:"title"`
			Body          string `json:"body"`
			Closed        bool   `json:"closed"`
		}
		if !bindJSON(c, &req) {
			return
		}
		if req.RepositoryURL == "" || req.Title == "" {
			writeError(c, fault.InvalidPayload("repository_url and title are required"))
			return
		}
		owner, name, err := s.forge.GetOwnerRepoFromURL(req.RepositoryURL)
		if err != nil {
			writeError(c, err)
			return
		}
		htmlURL, err := s.forge.CreateIssue(c.Request.Context(), forge.CreateIssue{
			Owner:  owner,
			Repo:   name,
			Title:  req.Title,
			Body:   req.Body,
			Closed: req.Closed,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"html_url": htmlURL})
	}
}

// handleCommentOnIssue posts a comment to an existing issue on the local
// forge.
func handleCommentOnIssue(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RepositoryURL string `json:"repository_url"`
			IssueURL      string `json:"issue_url"`
			Body          string `json:"body"`
		}
		if !bindJSON(c, &req) {
			return
		}
		if req.RepositoryURL == "" || req.IssueURL == "" || req.Body == "" {
			writeError(c, fault.InvalidPayload("repository_url, issue_url, and body are required"))
			return
		}
		owner, name, err := s.forge.GetOwnerRepoFromURL(req.RepositoryURL)
		if err != nil {
			writeError(c, err)
			return
		}
		comment := forge.CommentOnIssue{Owner: owner, Repo: name, IssueURL: req.IssueURL, Body: req.Body}
		if err := s.forge.CommentOnIssue(c.Request.Context(), comment); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	}
}
