package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"buttonbox/internal/config"
	"buttonbox/internal/connection"
	"buttonbox/internal/dispatch"
	"buttonbox/internal/macro"
	"buttonbox/internal/profile"
	"buttonbox/internal/protocol"
	"buttonbox/internal/store"
)

type statusResponse struct {
	Connection    connection.Status `json:"connection"`
	ActiveProfile string            `json:"active_profile"`
	TestMode      bool              `json:"test_mode"`
	Dial          int               `json:"dial"`
	RunningMacros []string          `json:"running_macros"`
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(c *gin.Context) {
	d := s.deps.Dispatcher
	c.JSON(http.StatusOK, SuccessResponse(statusResponse{
		Connection:    s.deps.Conn.Status(),
		ActiveProfile: d.ActiveName(),
		TestMode:      d.TestMode(),
		Dial:          d.Dial(),
		RunningMacros: s.deps.Macros.RunningNames(),
	}))
}

// handlePorts handles GET /api/ports
func (s *Server) handlePorts(c *gin.Context) {
	ports, err := s.deps.Ports()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(ports))
}

// handleGames handles GET /api/games
func (s *Server) handleGames(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse(gin.H{
		"games":     s.deps.Games.List(false),
		"shortcuts": s.deps.Games.ShortcutActions(),
	}))
}

func (s *Server) handlePause(c *gin.Context) {
	s.deps.Conn.Pause()
	c.JSON(http.StatusOK, SuccessResponse(s.deps.Conn.Status()))
}

func (s *Server) handleResume(c *gin.Context) {
	s.deps.Conn.Resume()
	c.JSON(http.StatusOK, SuccessResponse(s.deps.Conn.Status()))
}

func (s *Server) handleReconnect(c *gin.Context) {
	s.deps.Conn.Reconnect()
	c.JSON(http.StatusOK, MessageResponse("reconnecting"))
}

// handleSend handles POST /api/send {"line": "..."}
func (s *Server) handleSend(c *gin.Context) {
	var req struct {
		Line string `json:"line" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	if err := s.deps.Conn.Enqueue(req.Line); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, MessageResponse("queued"))
}

// handleHistory handles GET /api/history?dir=in|out|full
func (s *Server) handleHistory(c *gin.Context) {
	dir := connection.Direction(c.DefaultQuery("dir", string(connection.Full)))
	lines, err := s.deps.Conn.History(dir)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(lines))
}

// handleExportHistory handles POST /api/history/export
func (s *Server) handleExportHistory(c *gin.Context) {
	path := s.exportPath()
	if err := s.deps.Conn.ExportHistory(path); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(gin.H{"path": path}))
}

func (s *Server) handleGetProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse(s.deps.Dispatcher.Profiles()))
}

// handlePutProfiles replaces the whole profile collection
func (s *Server) handlePutProfiles(c *gin.Context) {
	set := profile.NewSet()
	if err := c.ShouldBindJSON(set); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	if err := s.deps.Store.SaveProfiles(set); err != nil {
		s.storeError(c, err)
		return
	}
	s.deps.Dispatcher.SetProfiles(set)
	log.Info().Int("profiles", set.Len()).Msg("API: profiles replaced")
	c.JSON(http.StatusOK, SuccessResponse(set))
}

// handleSelectProfile handles POST /api/profile {"name": "..."}
func (s *Server) handleSelectProfile(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	if err := s.deps.Dispatcher.SelectProfile(req.Name); err != nil {
		if errors.Is(err, dispatch.ErrUnknownProfile) {
			c.JSON(http.StatusNotFound, ErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	if err := s.deps.Config.SetValue("active_profile", s.deps.Dispatcher.ActiveName()); err != nil {
		log.Warn().Err(err).Msg("API: failed to remember active profile")
	}
	c.JSON(http.StatusOK, SuccessResponse(gin.H{"profile": s.deps.Dispatcher.ActiveName()}))
}

// handleTestMode handles POST /api/test-mode {"enabled": true}
func (s *Server) handleTestMode(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	s.deps.Dispatcher.SetTestMode(req.Enabled)
	c.JSON(http.StatusOK, SuccessResponse(gin.H{"test_mode": req.Enabled}))
}

func (s *Server) handleGetShortcuts(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse(s.deps.Store.Shortcuts()))
}

func (s *Server) handlePutShortcuts(c *gin.Context) {
	var table store.Shortcuts
	if err := c.ShouldBindJSON(&table); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	if err := s.deps.Store.SetShortcuts(table); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(s.deps.Store.Shortcuts()))
}

func (s *Server) handleGetCustomActions(c *gin.Context) {
	actions, err := s.deps.Store.CustomActions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(actions))
}

// handlePutCustomActions takes the list of action names and returns the id keyed table
func (s *Server) handlePutCustomActions(c *gin.Context) {
	var names []string
	if err := c.ShouldBindJSON(&names); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	existing, err := s.deps.Store.CustomActions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	actions := store.NameCustomActions(existing, names)
	if err := s.deps.Store.SetCustomActions(actions); err != nil {
		s.storeError(c, err)
		return
	}
	s.deps.Custom.SetActions(actions)
	c.JSON(http.StatusOK, SuccessResponse(actions))
}

func (s *Server) handleGetMacros(c *gin.Context) {
	macros, err := s.deps.Store.Macros()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	if macros == nil {
		macros = []macro.Macro{}
	}
	c.JSON(http.StatusOK, SuccessResponse(macros))
}

func (s *Server) handlePutMacros(c *gin.Context) {
	var macros []macro.Macro
	if err := c.ShouldBindJSON(&macros); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	if err := s.deps.Store.SetMacros(macros); err != nil {
		s.storeError(c, err)
		return
	}
	s.deps.Macros.SetMacros(macros)
	c.JSON(http.StatusOK, SuccessResponse(macros))
}

func (s *Server) handleGetConfig(c *gin.Context) {
	values, err := s.deps.Config.Values()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(values))
}

// handlePutConfig applies the given settings in key order
func (s *Server) handlePutConfig(c *gin.Context) {
	var changes map[string]interface{}
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := s.deps.Config.SetValue(k, changes[k]); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, config.ErrUnknownKey) || errors.Is(err, config.ErrInvalidValue) {
				status = http.StatusBadRequest
			}
			c.JSON(status, ErrorResponse(err.Error()))
			return
		}
	}
	log.Info().Strs("keys", keys).Msg("API: settings updated")
	s.handleGetConfig(c)
}

// storeError maps validation failures to 400
func (s *Server) storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrInvalid) || errors.Is(err, protocol.ErrUnencodable) {
		c.JSON(http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	log.Error().Err(err).Msg("API: failed to save")
	c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
}
