package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/raspterm/internal/auth"
)

const (
	tokenCookie = "token"
	ctxUserID   = "userId"
	adminUserID = "admin"
)

// bearerToken finds the credential on a request: Authorization header first,
// then the token cookie, then the ?token= query parameter browsers use for
// websocket attaches.
func bearerToken(c *gin.Context) string {
	if raw := c.GetHeader("Authorization"); raw != "" {
		parts := strings.SplitN(raw, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if v, err := c.Cookie(tokenCookie); err == nil && v != "" {
		return v
	}
	return c.Query("token")
}

// requireToken rejects requests without a valid token. On /ws this runs
// before the upgrade, so a refused client never reaches the session layer.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Access denied. No token provided.",
			})
			return
		}
		claims, err := s.deps.Tokens.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token.",
			})
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Next()
	}
}

// handleLogin exchanges the access password for a token.
//
//	POST /api/auth/login
//	Body: { "password": "..." }
func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required."})
		return
	}

	if !s.deps.Passwords.Check(body.Password) {
		log.Printf("[auth] failed login from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password."})
		return
	}

	token, err := s.deps.Tokens.Issue(adminUserID)
	if err != nil {
		log.Printf("[auth] issuing token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
		return
	}

	ttl := int(s.deps.Tokens.TTL().Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(tokenCookie, token, ttl, "/", "", s.opts.Production, true)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     token,
		"expiresIn": ttl,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(tokenCookie, "", -1, "/", "", s.opts.Production, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleVerify(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"valid": true, "userId": c.GetString(ctxUserID)})
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.CurrentPassword == "" || body.NewPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Current and new password are required."})
		return
	}

	err := s.deps.Passwords.Change(body.CurrentPassword, body.NewPassword)
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password must be at least 8 characters."})
	case errors.Is(err, auth.ErrWrongPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect."})
	case err != nil:
		log.Printf("[auth] change password: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
	default:
		log.Printf("[auth] password changed")
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed successfully."})
	}
}
