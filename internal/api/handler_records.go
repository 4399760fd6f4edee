package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smart-attendance-backend/internal/model"
)

// GetRecords handles GET /api/records: every record, newest first, capped
// by the limit query parameter (default 100).
func (h *Handler) GetRecords(c *gin.Context) {
	limit := queryLimit(c, 100)
	records, err := h.store.AllRecords(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
}

// GetTodayRecords handles GET /api/records/today, ascending by time.
func (h *Handler) GetTodayRecords(c *gin.Context) {
	today := time.Now().Format(model.DateLayout)
	records, err := h.store.RecordsOn(c.Request.Context(), today)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": today, "records": records, "total": len(records)})
}

// GetRecentRecords handles GET /api/records/recent, the activity feed
// (default limit 10).
func (h *Handler) GetRecentRecords(c *gin.Context) {
	limit := queryLimit(c, 10)
	records, err := h.store.RecentRecords(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
}

func queryLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
