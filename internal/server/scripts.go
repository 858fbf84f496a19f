package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/raspterm/internal/models"
	"github.com/vesaa/raspterm/internal/store"
)

const scriptTimeout = 60 * time.Second

type scriptBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Command     string `json:"command"`
	Icon        string `json:"icon"`
}

func (b scriptBody) script() (*models.Script, bool) {
	name, command := strings.TrimSpace(b.Name), strings.TrimSpace(b.Command)
	if name == "" || command == "" {
		return nil, false
	}
	return &models.Script{
		Name:        name,
		Description: b.Description,
		Command:     command,
		Icon:        b.Icon,
	}, true
}

func scriptID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid script id"})
		return 0, false
	}
	return uint(id), true
}

func (s *Server) handleScriptList(c *gin.Context) {
	list, err := s.deps.Scripts.ListScripts(c.Request.Context())
	if err != nil {
		log.Printf("[scripts] list: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scripts"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleScriptCreate(c *gin.Context) {
	var body scriptBody
	_ = c.ShouldBindJSON(&body)
	sc, ok := body.script()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name and command are required"})
		return
	}

	if err := s.deps.Scripts.CreateScript(c.Request.Context(), sc); err != nil {
		log.Printf("[scripts] create: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create script"})
		return
	}
	log.Printf("[scripts] created %d %q", sc.ID, sc.Name)
	c.JSON(http.StatusOK, gin.H{"success": true, "id": sc.ID})
}

func (s *Server) handleScriptUpdate(c *gin.Context) {
	id, ok := scriptID(c)
	if !ok {
		return
	}
	var body scriptBody
	_ = c.ShouldBindJSON(&body)
	sc, ok := body.script()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name and command are required"})
		return
	}

	err := s.deps.Scripts.UpdateScript(c.Request.Context(), id, sc)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Script not found"})
	case err != nil:
		log.Printf("[scripts] update %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update script"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (s *Server) handleScriptDelete(c *gin.Context) {
	id, ok := scriptID(c)
	if !ok {
		return
	}
	if err := s.deps.Scripts.DeleteScript(c.Request.Context(), id); err != nil {
		log.Printf("[scripts] delete %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete script"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleScriptExecute runs a stored command through sh with a 60 second
// limit and returns what it printed.
//
//	POST /api/scripts/:id/execute
func (s *Server) handleScriptExecute(c *gin.Context) {
	id, ok := scriptID(c)
	if !ok {
		return
	}
	sc, err := s.deps.Scripts.GetScript(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Script not found"})
		return
	}
	if err != nil {
		log.Printf("[scripts] get %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load script"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), scriptTimeout)
	defer cancel()

	log.Printf("[scripts] executing %d %q", sc.ID, sc.Name)
	out, err := s.deps.Runner.Run(ctx, "sh", "-c", sc.Command)
	if err != nil {
		log.Printf("[scripts] %q failed: %v", sc.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  err.Error(),
			"output": out.Stdout,
			"stderr": out.Stderr,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"output":    out.Stdout,
		"error":     out.Stderr,
		"truncated": out.Truncated,
	})
}
