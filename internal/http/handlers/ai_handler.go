// AI endpoints: meal suggestions, workout suggestions, and progress insights.
// All three share a per-identity daily quota enforced against the KV store so
// the model bill stays bounded per user, not per process.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fittrackpro/go-fitness-edge/internal/ai"
	"github.com/fittrackpro/go-fitness-edge/internal/cache"
	"github.com/fittrackpro/go-fitness-edge/internal/config"
)

// aiQuotaBucket names the fixed-window counter shared by all AI endpoints.
const aiQuotaBucket = "ai_requests"

// AIHandler serves the generation endpoints.
type AIHandler struct {
	Suggester *ai.Suggester
	KV        *cache.Store
	Limits    config.RateLimitConfig
}

// identity resolves the quota identity: the X-User-ID header, or "anonymous"
// so unidentified callers share one bucket instead of escaping the quota.
func identity(c *gin.Context) string {
	if uid := c.GetHeader("X-User-ID"); uid != "" {
		return uid
	}
	return "anonymous"
}

// checkQuota enforces the daily limit. Returns false after writing the 429.
func (h *AIHandler) checkQuota(c *gin.Context) bool {
	res := cache.CheckRateLimit(h.KV, aiQuotaBucket, identity(c), h.Limits.AIDailyLimit, h.Limits.AIWindow)
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if !res.Limited {
		return true
	}
	c.Header("Retry-After", strconv.FormatInt(int64(time.Until(res.Reset).Seconds()), 10))
	fail(c, http.StatusTooManyRequests, "Rate limit exceeded",
		fmt.Sprintf("Daily AI request limit reached. Resets at %s.", res.Reset.UTC().Format(time.RFC3339)))
	return false
}

type mealRequest struct {
	Goals        string `json:"goals"`
	Restrictions string `json:"restrictions"`
	Calories     int    `json:"calories"`
}

// MealSuggestions answers POST /api/ai/suggest-meal. The body is validated
// before the quota check so rejected requests never consume quota.
func (h *AIHandler) MealSuggestions(c *gin.Context) {
	var req mealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body", "")
		return
	}
	if req.Goals == "" {
		fail(c, http.StatusBadRequest, "goals is required", "")
		return
	}
	if !h.checkQuota(c) {
		return
	}

	meals, err := h.Suggester.SuggestMeals(c.Request.Context(), req.Goals, req.Restrictions, req.Calories)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "AI service unavailable", err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"meals": meals})
}

type workoutRequest struct {
	FitnessLevel string `json:"fitnessLevel"`
	Goals        string `json:"goals"`
	Equipment    string `json:"equipment"`
	Duration     int    `json:"duration"`
}

// WorkoutSuggestions answers POST /api/ai/suggest-workout.
func (h *AIHandler) WorkoutSuggestions(c *gin.Context) {
	var req workoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body", "")
		return
	}
	if req.FitnessLevel == "" || req.Goals == "" {
		fail(c, http.StatusBadRequest, "fitnessLevel and goals are required", "")
		return
	}
	if !h.checkQuota(c) {
		return
	}

	workout, err := h.Suggester.SuggestWorkout(c.Request.Context(), req.FitnessLevel, req.Goals, req.Equipment, req.Duration)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "AI service unavailable", err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"workout": workout})
}

type insightsRequest struct {
	Measurements json.RawMessage `json:"measurements"`
	Goals        string          `json:"goals"`
}

// ProgressInsights answers POST /api/ai/progress-insights. Generation
// failures degrade to a canned message rather than an error; insights are
// decorative, not load-bearing.
func (h *AIHandler) ProgressInsights(c *gin.Context) {
	var req insightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body", "")
		return
	}
	if len(req.Measurements) == 0 {
		fail(c, http.StatusBadRequest, "measurements is required", "")
		return
	}
	if !h.checkQuota(c) {
		return
	}

	insights, _ := h.Suggester.ProgressInsights(c.Request.Context(), req.Measurements, req.Goals)
	ok(c, http.StatusOK, gin.H{"insights": insights})
}
