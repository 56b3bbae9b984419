package main

import (
	"net/http"
	"strings"

	"dompet/pkg/apperr"
	"dompet/pkg/auth"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// tokenFromRequest prefers the auth cookie and falls back to a bearer header.
func tokenFromRequest(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := s.auth.Verify(tokenFromRequest(c, s.cfg.CookieName))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.Set(identityKey, *id)
		c.Next()
	}
}

// callerFrom returns the identity set by jwtAuthMiddleware.
func callerFrom(c *gin.Context) auth.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(auth.Identity)
	return id
}

func (s *server) setAuthCookie(c *gin.Context, token string) {
	c.SetSameSite(s.cfg.CookieSameSite)
	c.SetCookie(s.cfg.CookieName, token, int(s.cfg.JWTTTL.Seconds()), "/", "", s.cfg.CookieSecure, true)
}

func (s *server) clearAuthCookie(c *gin.Context) {
	c.SetSameSite(s.cfg.CookieSameSite)
	c.SetCookie(s.cfg.CookieName, "", -1, "/", "", s.cfg.CookieSecure, true)
}

func (s *server) registerHandler(c *gin.Context) {
	var req auth.RegisterInput
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := s.auth.Register(ctx, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.setAuthCookie(c, res.Token)
	c.JSON(http.StatusCreated, gin.H{"user": res.User})
}

func (s *server) loginHandler(c *gin.Context) {
	var req auth.LoginInput
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := s.auth.Login(ctx, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.setAuthCookie(c, res.Token)
	c.JSON(http.StatusOK, gin.H{"user": res.User})
}

func (s *server) logoutHandler(c *gin.Context) {
	s.clearAuthCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (s *server) meHandler(c *gin.Context) {
	id := callerFrom(c)
	if id.UserID == 0 {
		s.respondError(c, apperr.Unauthorized("missing identity"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": gin.H{"id": id.UserID, "email": id.Email, "clientId": id.ClientID}})
}
