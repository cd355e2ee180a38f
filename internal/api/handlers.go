package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradesim/internal/market"
)

// handleWebSocket upgrades the request and runs a session until the peer leaves
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the error response
		log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("WebSocket upgrade failed")
		return
	}
	if s.config.ReadLimit > 0 {
		conn.SetReadLimit(s.config.ReadLimit)
	}

	if err := s.sessions.Serve(c.Request.Context(), conn); err != nil && !isExpectedClose(err) {
		log.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Session ended with error")
	}
}

func isExpectedClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return false
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.sessions.Count(),
		"version":  s.config.Version,
	})
}

func (s *Server) handleListInstruments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"instruments": market.InstrumentNames(),
	})
}

// handleGetQuotes returns the retained quote history for one instrument
func (s *Server) handleGetQuotes(c *gin.Context) {
	inst, err := market.ParseInstrument(c.Param("instrument"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	quotes := s.history.Snapshot(inst)
	if quotes == nil {
		quotes = []market.Quote{}
	}
	c.JSON(http.StatusOK, gin.H{
		"instrument": inst,
		"quotes":     quotes,
	})
}
