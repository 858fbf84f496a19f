// Package server provides the RaspTerm Gin HTTP surface: the REST API, the
// authenticated websocket attach point, metrics, and the embedded dashboard.
//
//	Public:         POST /api/auth/login, POST /api/auth/logout, GET /api/health,
//	                GET /healthz, GET /metrics
//	Protected(JWT): GET /ws and every other /api/* route
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vesaa/raspterm/internal/auth"
	"github.com/vesaa/raspterm/internal/docker"
	"github.com/vesaa/raspterm/internal/models"
	"github.com/vesaa/raspterm/internal/telemetry"
	"github.com/vesaa/raspterm/internal/terminal"
)

// History is the read-only side of the retention store.
type History interface {
	Query(ctx context.Context, hours int) ([]models.StatsRecord, error)
}

// Scripts is the custom scripts table.
type Scripts interface {
	ListScripts(ctx context.Context) ([]models.Script, error)
	GetScript(ctx context.Context, id uint) (*models.Script, error)
	CreateScript(ctx context.Context, sc *models.Script) error
	UpdateScript(ctx context.Context, id uint, sc *models.Script) error
	DeleteScript(ctx context.Context, id uint) error
}

// Snapshots yields one fresh telemetry reading.
type Snapshots interface {
	Current(ctx context.Context) (*telemetry.Snapshot, error)
}

// Sessions lists live terminal sessions.
type Sessions interface {
	Sessions() []terminal.Info
}

// Containers is the Docker surface.
type Containers interface {
	Info(ctx context.Context) docker.Info
	List(ctx context.Context) ([]docker.Container, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Logs(ctx context.Context, id string, tail int) (string, error)
	Prune(ctx context.Context) (docker.PruneReport, error)
}

// Options tunes the HTTP surface.
type Options struct {
	Production bool
	// ClientURL is the dev origin allowed by CORS outside production.
	ClientURL    string
	LoginWindow  time.Duration
	LoginMax     int
	APIPerMinute int // default 100
}

// Deps are the collaborators behind the routes. Containers may be nil when
// no Docker client could be created; the docker routes then answer 503.
type Deps struct {
	Tokens     *auth.Tokens
	Passwords  *auth.Passwords
	History    History
	Scripts    Scripts
	Snapshots  Snapshots
	Sessions   Sessions
	Containers Containers
	Runner     Runner
	// WS handles authenticated websocket attaches.
	WS http.Handler
}

// Server holds the route handlers.
type Server struct {
	deps  Deps
	opts  Options
	login *ipLimiter
	api   *ipLimiter
}

// New creates a Server.
func New(deps Deps, opts Options) *Server {
	if opts.LoginWindow <= 0 {
		opts.LoginWindow = 15 * time.Minute
	}
	if opts.LoginMax <= 0 {
		opts.LoginMax = 5
	}
	if opts.APIPerMinute <= 0 {
		opts.APIPerMinute = 100
	}
	if deps.Runner == nil {
		deps.Runner = ExecRunner{}
	}
	return &Server{
		deps:  deps,
		opts:  opts,
		login: newIPLimiter(opts.LoginWindow, opts.LoginMax),
		api:   newIPLimiter(time.Minute, opts.APIPerMinute),
	}
}

// Engine builds the Gin engine with every route mounted.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if !s.opts.Production && s.opts.ClientURL != "" {
		r.Use(s.cors())
	}

	s.RegisterRoutes(r)
	RegisterStaticFiles(r)
	return r
}

// RegisterRoutes mounts the API, the websocket endpoint and the probes.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.requireToken(), gin.WrapH(s.deps.WS))

	api := r.Group("/api", s.api.middleware("Too many requests. Please slow down."))

	// ── Public endpoints ──────────────────────────────────────────────────────
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
	api.POST("/auth/login", s.login.middleware("Too many login attempts. Please try again later."), s.handleLogin)
	api.POST("/auth/logout", s.handleLogout)

	// ── JWT-protected endpoints ───────────────────────────────────────────────
	protected := api.Group("/", s.requireToken())
	{
		protected.GET("/auth/verify", s.handleVerify)
		protected.POST("/auth/change-password", s.handleChangePassword)

		protected.GET("/stats/current", s.handleStatsCurrent)
		protected.GET("/stats/history/:hours", s.handleStatsHistory)
		protected.GET("/terminal/sessions", s.handleTerminalSessions)

		actions := protected.Group("/actions")
		actions.POST("/system/reboot", s.handleReboot)
		actions.POST("/system/shutdown", s.handleShutdown)
		actions.POST("/system/service/:action/:service", s.handleService)
		actions.POST("/system/clear-cache", s.handleClearCache)
		actions.POST("/system/update", s.handleUpdate)

		dock := actions.Group("/docker", s.requireDocker())
		dock.GET("/info", s.handleDockerInfo)
		dock.GET("/containers", s.handleDockerList)
		dock.POST("/containers/:id/:op", s.handleDockerControl)
		dock.GET("/containers/:id/logs", s.handleDockerLogs)
		dock.POST("/prune", s.handleDockerPrune)

		protected.GET("/scripts", s.handleScriptList)
		protected.POST("/scripts", s.handleScriptCreate)
		protected.PUT("/scripts/:id", s.handleScriptUpdate)
		protected.DELETE("/scripts/:id", s.handleScriptDelete)
		protected.POST("/scripts/:id/execute", s.handleScriptExecute)
	}
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", s.opts.ClientURL)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
