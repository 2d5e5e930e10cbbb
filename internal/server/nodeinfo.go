package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgelink/relay/internal/peer"
)

const (
	softwareName    = "forgelink"
	softwareVersion = "0.1.0"
)

// handleNodeinfoIndex advertises where the nodeinfo document lives.
func handleNodeinfoIndex(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"links": []gin.H{{
				"href": s.cfg.URL + "/.well-known/nodeinfo/2.0.json",
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
			}},
		})
	}
}

// handleNodeinfo serves the nodeinfo 2.0 document. Usage figures come from
// the store's TTL-cached counters, so they may lag recent writes.
func handleNodeinfo(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.store.CountUsers()
		if err != nil {
			writeError(c, err)
			return
		}
		issues, err := s.store.CountIssues()
		if err != nil {
			writeError(c, err)
			return
		}
		comments, err := s.store.CountComments()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"version": "2.0",
			"software": gin.H{
				"name":    softwareName,
				"version": softwareVersion,
			},
			"services":  gin.H{"inbound": []string{}, "outbound": []string{}},
			"protocols": []string{"activitypub"},
			"usage": gin.H{
				"users":         gin.H{"total": users},
				"localPosts":    issues,
				"localComments": comments,
			},
			"openRegistrations": false,
			"metadata":          gin.H{"forgelink-protocols": peer.ProtocolVersions},
		})
	}
}
