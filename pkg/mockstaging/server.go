// Package mockstaging is an in-process, scripted replica of the Golden Path
// staging surface: the HTTP endpoints and the authenticated /ws agent stream.
// The suites boot it on a loopback port when STAGING_E2E_TEST is unset, so the
// whole repository runs hermetically — the same way the platform's own e2e
// boots its server in-process.
//
// Only the observable wire behavior is replicated; there is no agent engine
// behind it, just the ScriptBook.
package mockstaging

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goldenpath-ai/staging-e2e/pkg/authtest"
	"github.com/goldenpath-ai/staging-e2e/pkg/version"
)

// Server is one running replica instance.
type Server struct {
	minter  *authtest.Minter
	scripts *ScriptBook
	history *historyStore
	log     *slog.Logger

	httpSrv *http.Server

	// Set by Start.
	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/ws"
}

// Option configures the server.
type Option func(*Server)

// WithScripts installs a pre-filled script book.
func WithScripts(book *ScriptBook) Option {
	return func(s *Server) { s.scripts = book }
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a replica validating tokens signed with jwtSecret.
func New(jwtSecret string, opts ...Option) *Server {
	s := &Server{
		minter:  authtest.NewMinter(jwtSecret),
		scripts: NewScriptBook(),
		history: newHistoryStore(),
		log:     slog.Default().With("component", "mockstaging"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scripts returns the script book for late additions.
func (s *Server) Scripts() *ScriptBook { return s.scripts }

// Start listens on a random loopback port and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("mockstaging listen: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	s.routes(engine)

	s.httpSrv = &http.Server{Handler: engine}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("serve failed", "error", err)
		}
	}()

	addr := ln.Addr().String()
	s.BaseURL = "http://" + addr
	s.WSURL = "ws://" + addr + "/ws"
	s.log.Debug("mockstaging started", "base_url", s.BaseURL)
	return nil
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes(engine *gin.Engine) {
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	engine.GET("/health", s.handleHealth)

	authed := engine.Group("/", s.authMiddleware())
	authed.GET("/auth/validate", s.handleValidate)
	authed.GET("/chat/history", s.handleHistory)

	engine.GET("/ws", s.handleWS)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"service":     "goldenpath-backend",
		"environment": "local",
		"version":     version.Full(),
	})
}

// authMiddleware validates the bearer token and stores the claims.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := s.minter.Verify(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}

func claimsFrom(c *gin.Context) authtest.Claims {
	claims, _ := c.MustGet("claims").(authtest.Claims)
	return claims
}

func (s *Server) handleValidate(c *gin.Context) {
	claims := claimsFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"user_id": claims.UserID,
		"email":   claims.Email,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	threadID := c.Query("thread_id")
	if threadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "thread_id required"})
		return
	}
	claims := claimsFrom(c)
	entries := s.history.list(claims.UserID, threadID)
	if entries == nil {
		entries = []HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"thread_id": threadID,
		"messages":  entries,
	})
}
