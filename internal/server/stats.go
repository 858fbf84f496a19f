package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/raspterm/internal/store"
)

func (s *Server) handleStatsCurrent(c *gin.Context) {
	snap, err := s.deps.Snapshots.Current(c.Request.Context())
	if err != nil {
		log.Printf("[stats] current: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get system stats"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleStatsHistory returns persisted records for the last N hours, oldest first.
//
//	GET /api/stats/history/:hours
func (s *Server) handleStatsHistory(c *gin.Context) {
	hours, err := strconv.Atoi(c.Param("hours"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Hours must be between 1 and 720"})
		return
	}

	recs, err := s.deps.History.Query(c.Request.Context(), hours)
	switch {
	case errors.Is(err, store.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Hours must be between 1 and 720"})
	case err != nil:
		log.Printf("[stats] history(%d): %v", hours, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats history"})
	default:
		c.JSON(http.StatusOK, recs)
	}
}

func (s *Server) handleTerminalSessions(c *gin.Context) {
	sessions := s.deps.Sessions.Sessions()
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}
