package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-attendance-backend/internal/engine"
)

// StartSession handles POST /api/session/start.
func (h *Handler) StartSession(c *gin.Context) {
	err := h.sessions.Start(c.Request.Context())
	switch {
	case errors.Is(err, engine.ErrSessionRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		// Seeding from the ledger failed; a session must not start on an
		// empty seed.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.sessions.Snapshot())
}

// StopSession handles POST /api/session/stop. Stopping an idle engine is
// not an error.
func (h *Handler) StopSession(c *gin.Context) {
	h.sessions.Stop()
	c.JSON(http.StatusOK, h.sessions.Snapshot())
}

// GetSession handles GET /api/session.
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Snapshot())
}
