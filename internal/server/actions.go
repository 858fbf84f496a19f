package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/raspterm/internal/docker"
)

const (
	powerDelay    = 5 * time.Second
	serviceWait   = 30 * time.Second
	updateTimeout = 10 * time.Minute
	defaultTail   = 100
)

var (
	serviceName    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	serviceActions = map[string]bool{"start": true, "stop": true, "restart": true, "status": true}
	controlDone    = map[string]string{"start": "started", "stop": "stopped", "restart": "restarted"}
)

func (s *Server) handleReboot(c *gin.Context) {
	log.Printf("[actions] reboot requested by %s", c.ClientIP())
	s.deps.Runner.Later(powerDelay, "sudo", "reboot")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "System will reboot in 5 seconds..."})
}

func (s *Server) handleShutdown(c *gin.Context) {
	log.Printf("[actions] shutdown requested by %s", c.ClientIP())
	s.deps.Runner.Later(powerDelay, "sudo", "shutdown", "-h", "now")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "System will shutdown in 5 seconds..."})
}

// handleService drives systemctl for one unit.
//
//	POST /api/actions/system/service/:action/:service
func (s *Server) handleService(c *gin.Context) {
	action, service := c.Param("action"), c.Param("service")
	if !serviceActions[action] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}
	if !serviceName.MatchString(service) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid service name"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), serviceWait)
	defer cancel()

	out, err := s.deps.Runner.Run(ctx, "sudo", "systemctl", action, service)
	// systemctl status exits non-zero for inactive units but still reports.
	if err != nil && !(action == "status" && out.Stdout != "") {
		log.Printf("[actions] systemctl %s %s: %v", action, service, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "output": out.Stderr})
		return
	}

	output := out.Stdout
	if output == "" {
		output = out.Stderr
	}
	if output == "" {
		output = fmt.Sprintf("Service %s %s completed", service, action)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "output": output})
}

func (s *Server) handleClearCache(c *gin.Context) {
	out, err := s.deps.Runner.Run(c.Request.Context(),
		"sudo", "sh", "-c", "sync && echo 3 > /proc/sys/vm/drop_caches")
	if err != nil {
		log.Printf("[actions] clear cache: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "output": out.Stderr})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Cache cleared successfully"})
}

func (s *Server) handleUpdate(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), updateTimeout)
	defer cancel()

	out, err := s.deps.Runner.Run(ctx,
		"sudo", "sh", "-c", "apt-get update && DEBIAN_FRONTEND=noninteractive apt-get upgrade -y")
	if err != nil {
		log.Printf("[actions] system update: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "output": out.Stdout + out.Stderr})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "output": out.Stdout})
}

// ── Docker ──────────────────────────────────────────────────────────────────

func (s *Server) requireDocker() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Containers == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Docker is not available"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleDockerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Containers.Info(c.Request.Context()))
}

func (s *Server) handleDockerList(c *gin.Context) {
	list, err := s.deps.Containers.List(c.Request.Context())
	if err != nil {
		log.Printf("[docker] list: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list containers"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// handleDockerControl starts, stops or restarts a container.
//
//	POST /api/actions/docker/containers/:id/:op
func (s *Server) handleDockerControl(c *gin.Context) {
	id, op := c.Param("id"), c.Param("op")

	var fn func(context.Context, string) error
	switch op {
	case "start":
		fn = s.deps.Containers.Start
	case "stop":
		fn = s.deps.Containers.Stop
	case "restart":
		fn = s.deps.Containers.Restart
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid operation"})
		return
	}

	if err := fn(c.Request.Context(), id); err != nil {
		writeDockerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("Container %s %s", id, controlDone[op])})
}

func (s *Server) handleDockerLogs(c *gin.Context) {
	tail := defaultTail
	if raw := c.Query("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tail must be a positive integer"})
			return
		}
		tail = n
	}

	logs, err := s.deps.Containers.Logs(c.Request.Context(), c.Param("id"), tail)
	if err != nil {
		writeDockerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) handleDockerPrune(c *gin.Context) {
	rep, err := s.deps.Containers.Prune(c.Request.Context())
	if err != nil {
		log.Printf("[docker] prune: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"message":             "Docker system pruned",
		"containers":          rep.Containers,
		"images":              rep.Images,
		"volumes":             rep.Volumes,
		"spaceReclaimed":      rep.SpaceReclaimed,
		"spaceReclaimedHuman": rep.Human,
	})
}

func writeDockerError(c *gin.Context, err error) {
	if errors.Is(err, docker.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Container not found"})
		return
	}
	log.Printf("[docker] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
