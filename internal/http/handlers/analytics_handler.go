// Analytics endpoints: event ingestion and the trainer dashboard summary.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fittrackpro/go-fitness-edge/internal/repo"
)

// AnalyticsHandler serves /api/analytics/*.
type AnalyticsHandler struct {
	DB *gorm.DB
}

type trackRequest struct {
	EventType string         `json:"event_type"`
	TrainerID int64          `json:"trainer_id"`
	Metadata  map[string]any `json:"metadata"`
}

// Track answers POST /api/analytics/track: explicit client-side events, as
// opposed to the request events the tracker records automatically.
func (h *AnalyticsHandler) Track(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.EventType == "" {
		fail(c, http.StatusBadRequest, "event_type is required", "")
		return
	}

	meta := "{}"
	if req.Metadata != nil {
		if raw, err := json.Marshal(req.Metadata); err == nil {
			meta = string(raw)
		}
	}
	if err := repo.InsertAnalyticsEvent(c.Request.Context(), h.DB, req.EventType, req.TrainerID, meta); err != nil {
		fail(c, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"success": true})
}

// Dashboard answers GET /api/analytics/dashboard?trainerId=N with the
// seven-day event summary.
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	trainerID, err := strconv.ParseInt(c.Query("trainerId"), 10, 64)
	if err != nil || trainerID <= 0 {
		fail(c, http.StatusBadRequest, "trainerId is required", "")
		return
	}

	stats, err := repo.TrainerDashboard(c.Request.Context(), h.DB, trainerID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}
