package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// HealthHandler reports which capabilities this deployment has configured.
// It never touches a store: health must answer even while every dependency
// is on fire, and orchestrator probes must not generate load.
type HealthHandler struct {
	KV        bool // key-value cache bound
	DB        bool // relational edge store bound
	AI        bool // at least one generation provider configured
	Vectorize bool // exercise search index present
	Analytics bool // request tracking enabled
	Chat      bool // chat hub present
}

// Health answers GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
		"features": gin.H{
			"kv":        h.KV,
			"d1":        h.DB,
			"ai":        h.AI,
			"vectorize": h.Vectorize,
			"analytics": h.Analytics,
			"chat":      h.Chat,
		},
	})
}
