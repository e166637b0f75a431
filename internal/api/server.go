// Package api provides the local HTTP control surface of the buttonbox client.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"buttonbox/internal/config"
	"buttonbox/internal/connection"
	"buttonbox/internal/dispatch"
	"buttonbox/internal/game"
	"buttonbox/internal/macro"
	"buttonbox/internal/serialport"
	"buttonbox/internal/store"
)

// HistoryFile is the name of the exported serial history
const HistoryFile = "serial_history.txt"

// Deps are the components the API controls
type Deps struct {
	Config     *config.Manager
	Conn       *connection.Connection
	Dispatcher *dispatch.Dispatcher
	Store      *store.Store
	Games      *game.Registry
	Custom     *game.Custom
	Macros     *macro.Engine
	// Ports lists serial ports; defaults to serialport.ListPorts
	Ports func() ([]serialport.PortInfo, error)
	// ExportDir receives exported history files
	ExportDir string
}

// Server provides the HTTP API and the event feed
type Server struct {
	deps   Deps
	token  string
	wsMgr  *WSManager
	router *gin.Engine
	http   *http.Server
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	if deps.Ports == nil {
		deps.Ports = serialport.ListPorts
	}
	s := &Server{
		deps:  deps,
		token: deps.Config.Get().APIToken,
	}
	s.wsMgr = newWSManager(s)

	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.router.Use(s.recoverMiddleware(), s.authMiddleware())
	s.setupRoutes()

	deps.Dispatcher.Subscribe(s.wsMgr.Broadcast)
	deps.Conn.OnLine(func(dir connection.Direction, line string) {
		s.wsMgr.Broadcast(dispatch.Event{Type: "line", Data: lineEvent{Dir: string(dir), Line: line}})
	})
	return s
}

type lineEvent struct {
	Dir  string `json:"dir"`
	Line string `json:"line"`
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the API on localhost:port until Shutdown is called
func (s *Server) Start(port int) error {
	go s.wsMgr.start()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("API: failed to listen")
		return err
	}
	log.Info().Str("addr", addr).Msg("API: server started")

	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("API: server stopped")
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and closes websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsMgr.stop()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) exportPath() string {
	return filepath.Join(s.deps.ExportDir, HistoryFile)
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Str("path", c.Request.URL.Path).Msg("API: recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse("internal server error"))
			}
		}()
		c.Next()
	}
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		log.Debug().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Msg("API: request")

		if c.Request.URL.Path == "/health" || s.token == "" {
			c.Next()
			return
		}
		// browsers cannot set headers on websocket upgrades
		if c.GetHeader("Authorization") != "Bearer "+s.token && c.Query("token") != s.token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse("unauthorized"))
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", s.wsMgr.handleWebSocket)

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/ports", s.handlePorts)
		api.GET("/games", s.handleGames)

		conn := api.Group("/connection")
		{
			conn.POST("/pause", s.handlePause)
			conn.POST("/resume", s.handleResume)
			conn.POST("/reconnect", s.handleReconnect)
		}
		api.POST("/send", s.handleSend)
		api.GET("/history", s.handleHistory)
		api.POST("/history/export", s.handleExportHistory)

		api.GET("/profiles", s.handleGetProfiles)
		api.PUT("/profiles", s.handlePutProfiles)
		api.POST("/profile", s.handleSelectProfile)
		api.POST("/test-mode", s.handleTestMode)

		api.GET("/shortcuts", s.handleGetShortcuts)
		api.PUT("/shortcuts", s.handlePutShortcuts)
		api.GET("/custom-actions", s.handleGetCustomActions)
		api.PUT("/custom-actions", s.handlePutCustomActions)
		api.GET("/macros", s.handleGetMacros)
		api.PUT("/macros", s.handlePutMacros)

		api.GET("/config", s.handleGetConfig)
		api.PUT("/config", s.handlePutConfig)
	}
}
