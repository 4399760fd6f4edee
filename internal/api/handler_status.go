package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smart-attendance-backend/internal/model"
)

// statusResponse mirrors the original dashboard numbers: registered
// students, present today and the resulting rate.
type statusResponse struct {
	TotalStudents  int64   `json:"total_students"`
	PresentToday   int64   `json:"present_today"`
	AttendanceRate float64 `json:"attendance_rate"`
	Date           string  `json:"date"`
}

// GetStatus handles the GET /api/status request.
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	today := time.Now().Format(model.DateLayout)

	total, err := h.store.CountStudents(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to count students"})
		return
	}

	present, err := h.store.CountOn(ctx, today)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to count attendance"})
		return
	}

	rate := 0.0
	if total > 0 {
		rate = float64(present) / float64(total) * 100
	}

	c.JSON(http.StatusOK, statusResponse{
		TotalStudents:  total,
		PresentToday:   present,
		AttendanceRate: rate,
		Date:           today,
	})
}
